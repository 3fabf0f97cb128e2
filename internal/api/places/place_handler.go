package places

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/saartech/quattropole-assistant/internal/api"
	"github.com/saartech/quattropole-assistant/internal/types"
)

type Handler struct {
	logger  *slog.Logger
	service Service
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// parseFilter reads the uniform query contract from the URL query string.
func parseFilter(query url.Values) types.PlaceFilter {
	filter := types.PlaceFilter{
		Name:       query.Get("name"),
		Categories: query["categories"],
		Diets:      query["diets"],
		Cuisines:   query["cuisines"],
		Features:   query["features"],
	}

	if v := query.Get("latitude"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			filter.Latitude = &lat
		}
	}
	if v := query.Get("longitude"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			filter.Longitude = &lon
		}
	}
	if v := query.Get("radius"); v != "" {
		if radius, err := strconv.ParseFloat(v, 64); err == nil {
			filter.RadiusMeters = radius
		}
	}
	if v := query.Get("minCapacity"); v != "" {
		if capacity, err := strconv.Atoi(v); err == nil {
			filter.MinCapacity = &capacity
		}
	}
	if v := query.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}
	for _, raw := range query["ids"] {
		if id, err := uuid.Parse(raw); err == nil {
			filter.IDs = append(filter.IDs, id)
		}
	}
	return filter
}

// GetAllPlaces handles GET /places
func (h *Handler) GetAllPlaces(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlaceHandler").Start(r.Context(), "GetAllPlaces")
	defer span.End()

	groups, err := h.service.GetAllPlaces(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load places", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load places")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, groups)
}

// GetShops handles GET /places/shops
func (h *Handler) GetShops(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlaceHandler").Start(r.Context(), "GetShops")
	defer span.End()

	shops, err := h.service.SearchShops(ctx, parseFilter(r.URL.Query()))
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to search shops", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to search shops")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, shops)
}

// GetGastronomy handles GET /places/gastronomy
func (h *Handler) GetGastronomy(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlaceHandler").Start(r.Context(), "GetGastronomy")
	defer span.End()

	gastronomy, err := h.service.SearchGastronomy(ctx, parseFilter(r.URL.Query()))
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to search gastronomy", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to search gastronomy")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, gastronomy)
}

// GetSightseeing handles GET /places/sightseeing
func (h *Handler) GetSightseeing(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlaceHandler").Start(r.Context(), "GetSightseeing")
	defer span.End()

	sightseeing, err := h.service.SearchSightseeing(ctx, parseFilter(r.URL.Query()))
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to search sightseeing", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to search sightseeing")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, sightseeing)
}

// GetParking handles GET /places/parking
func (h *Handler) GetParking(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlaceHandler").Start(r.Context(), "GetParking")
	defer span.End()

	parking, err := h.service.SearchParking(ctx, parseFilter(r.URL.Query()))
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to search parking", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to search parking")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, parking)
}

// GetClosestParking handles GET /places/parking/closest
func (h *Handler) GetClosestParking(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PlaceHandler").Start(r.Context(), "GetClosestParking")
	defer span.End()

	query := r.URL.Query()
	lat, latErr := strconv.ParseFloat(query.Get("latitude"), 64)
	lon, lonErr := strconv.ParseFloat(query.Get("longitude"), 64)
	if latErr != nil || lonErr != nil {
		span.SetStatus(codes.Error, "Missing coordinates")
		api.ErrorResponse(w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	parking, err := h.service.ClosestParking(ctx, lat, lon, parseFilter(query))
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to search closest parking", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Service operation failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to search closest parking")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, parking)
}

package chat

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saartech/quattropole-assistant/internal/api"
	"github.com/saartech/quattropole-assistant/internal/types"
)

// Handler exposes the conversation REST surface; live traffic goes through
// the hub's socket endpoint.
type Handler struct {
	logger  *slog.Logger
	service Service
	hub     *Hub
}

func NewHandler(service Service, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		hub:     hub,
	}
}

// CreateConversation starts an empty conversation and returns its ID. The
// body is optional: `{"mapDetails": {"center": ..., "zoom": ...}}` seeds the
// initial map view instead of the city default.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ChatHandler").Start(r.Context(), "CreateConversation")
	defer span.End()

	var req struct {
		MapDetails *MapSeed `json:"mapDetails"`
	}
	if r.ContentLength != 0 {
		if err := api.DecodeJSONBody(w, r, &req); err != nil {
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	if seed := req.MapDetails; seed != nil {
		if seed.Center.Latitude < -90 || seed.Center.Latitude > 90 ||
			seed.Center.Longitude < -180 || seed.Center.Longitude > 180 {
			api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid map center coordinates")
			return
		}
	}

	conv, err := h.service.CreateConversation(ctx, req.MapDetails)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to create conversation", slog.Any("error", err))
		span.RecordError(err)
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	span.SetAttributes(attribute.String("conversation.id", conv.ID.String()))
	api.WriteJSONResponse(w, r, http.StatusCreated, conv)
}

// GetConversation returns the full message log and current map state.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ChatHandler").Start(r.Context(), "GetConversation", trace.WithAttributes(
		attribute.String("conversation.id", chi.URLParam(r, "conversationID")),
	))
	defer span.End()

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	conv, err := h.service.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, types.ErrConversationNotFound) {
			api.ErrorResponse(w, r, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to load conversation", slog.Any("error", err))
		span.RecordError(err)
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to load conversation")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, conv)
}

// ServeWS hands the connection to the hub.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

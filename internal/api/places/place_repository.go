package places

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/saartech/quattropole-assistant/app/observability/metrics"
	"github.com/saartech/quattropole-assistant/internal/types"
)

const (
	defaultSearchLimit       = 20
	defaultSearchRadiusM     = 1000.0
	maxSearchRadiusM         = 50000.0
	defaultClosestParkingCap = 5
)

var _ Repository = (*RepositoryImpl)(nil)

// Repository is read-only access to the place catalogs. Writes happen in
// offline import jobs, never here.
type Repository interface {
	GetAllPlaces(ctx context.Context) (types.PlaceGroups, error)
	FindShops(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error)
	FindGastronomy(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error)
	FindSightseeing(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error)
	FindParking(ctx context.Context, filter types.PlaceFilter) ([]types.ParkingLot, error)
	FindClosestParking(ctx context.Context, latitude, longitude float64, filter types.PlaceFilter) ([]types.ParkingLot, error)
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool *pgxpool.Pool
}

func NewRepository(pgxpool *pgxpool.Pool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgxpool,
	}
}

// normalizeFilter applies the defaults and ceilings of the shared query
// contract: limit defaults to 20, radius defaults to 1km and is clamped to
// 50km to bound query cost.
func normalizeFilter(filter types.PlaceFilter) types.PlaceFilter {
	if filter.Limit <= 0 {
		filter.Limit = defaultSearchLimit
	}
	if filter.RadiusMeters <= 0 {
		filter.RadiusMeters = defaultSearchRadiusM
	}
	if filter.RadiusMeters > maxSearchRadiusM {
		filter.RadiusMeters = maxSearchRadiusM
	}
	return filter
}

// commonConditions builds the WHERE clauses shared by every find operation.
// An explicit IDs allowlist short-circuits all other filters.
func commonConditions(filter types.PlaceFilter, args []any) ([]string, []any) {
	var conds []string

	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
		return conds, args
	}

	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		conds = append(conds, fmt.Sprintf("categories && $%d", len(args)))
	}
	if filter.Latitude != nil && filter.Longitude != nil {
		args = append(args, *filter.Longitude, *filter.Latitude, filter.RadiusMeters)
		conds = append(conds, fmt.Sprintf(
			"ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($%d, $%d), 4326)::geography, $%d)",
			len(args)-2, len(args)-1, len(args)))
	}
	return conds, args
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

const placeColumns = `
        id, name, categories,
        COALESCE(address, ''), COALESCE(phone, ''), COALESCE(website, ''),
        COALESCE(description, ''), opening_hours, image_urls,
        ST_X(location::geometry) AS longitude,
        ST_Y(location::geometry) AS latitude`

func scanPlaceRow(rows pgx.Rows) (types.Place, error) {
	var p types.Place
	var lon, lat float64
	err := rows.Scan(&p.ID, &p.Name, &p.Categories,
		&p.Address, &p.Phone, &p.Website,
		&p.Description, &p.OpeningHours, &p.ImageURLs,
		&lon, &lat)
	if err != nil {
		return types.Place{}, fmt.Errorf("failed to scan place row: %w", err)
	}
	p.Location = types.GeoPoint{Type: "Point", Coordinates: [2]float64{lon, lat}}
	return p, nil
}

func (r *RepositoryImpl) queryPlaces(ctx context.Context, query string, args []any) ([]types.Place, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	defer rows.Close()

	var result []types.Place
	for rows.Next() {
		p, err := scanPlaceRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating place rows: %w", err)
	}
	return result, nil
}

// GetAllPlaces returns the complete snapshot of the three catalogs. On any
// failure it returns empty groups with a wrapped ErrRepositoryUnavailable so
// the conversational pipeline can continue without suggestions.
func (r *RepositoryImpl) GetAllPlaces(ctx context.Context) (types.PlaceGroups, error) {
	ctx, span := otel.Tracer("PlaceRepo").Start(ctx, "GetAllPlaces", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
	))
	defer span.End()

	groups := types.PlaceGroups{}

	shops, err := r.queryPlaces(ctx, "SELECT "+placeColumns+" FROM shops", nil)
	if err != nil {
		return r.unavailable(ctx, span, "shops", err)
	}
	gastronomy, err := r.queryGastronomy(ctx, "SELECT "+gastronomyColumns+" FROM gastronomy", nil)
	if err != nil {
		return r.unavailable(ctx, span, "gastronomy", err)
	}
	sightseeing, err := r.querySightseeing(ctx, "SELECT "+sightseeingColumns+" FROM sightseeing", nil)
	if err != nil {
		return r.unavailable(ctx, span, "sightseeing", err)
	}

	groups.Shops = shops
	groups.Gastronomy = gastronomy
	groups.Sightseeing = sightseeing

	span.SetAttributes(
		attribute.Int("shops.count", len(shops)),
		attribute.Int("gastronomy.count", len(gastronomy)),
		attribute.Int("sightseeing.count", len(sightseeing)),
	)
	span.SetStatus(codes.Ok, "Snapshot loaded")
	r.logger.InfoContext(ctx, "Loaded place snapshot",
		slog.Int("shops", len(shops)),
		slog.Int("gastronomy", len(gastronomy)),
		slog.Int("sightseeing", len(sightseeing)))
	return groups, nil
}

func (r *RepositoryImpl) unavailable(ctx context.Context, span trace.Span, collection string, err error) (types.PlaceGroups, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "Snapshot load failed")
	r.logger.ErrorContext(ctx, "Place snapshot load failed",
		slog.String("collection", collection), slog.Any("error", err))
	return types.PlaceGroups{}, fmt.Errorf("%w: %v", types.ErrRepositoryUnavailable, err)
}

const gastronomyColumns = `
        id, name, categories,
        COALESCE(address, ''), COALESCE(phone, ''), COALESCE(website, ''),
        COALESCE(description, ''), opening_hours, image_urls,
        ST_X(location::geometry) AS longitude,
        ST_Y(location::geometry) AS latitude,
        cuisines, diets, features, payment_methods`

func (r *RepositoryImpl) queryGastronomy(ctx context.Context, query string, args []any) ([]types.Place, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to query gastronomy: %w", err)
	}
	defer rows.Close()

	var result []types.Place
	for rows.Next() {
		var p types.Place
		var lon, lat float64
		err := rows.Scan(&p.ID, &p.Name, &p.Categories,
			&p.Address, &p.Phone, &p.Website,
			&p.Description, &p.OpeningHours, &p.ImageURLs,
			&lon, &lat,
			&p.Cuisines, &p.Diets, &p.Features, &p.PaymentMethods)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gastronomy row: %w", err)
		}
		p.Location = types.GeoPoint{Type: "Point", Coordinates: [2]float64{lon, lat}}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gastronomy rows: %w", err)
	}
	return result, nil
}

func (r *RepositoryImpl) FindShops(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	ctx, span := otel.Tracer("PlaceRepo").Start(ctx, "FindShops", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "shops"),
	))
	defer span.End()

	filter = normalizeFilter(filter)
	conds, args := commonConditions(filter, nil)
	args = append(args, filter.Limit)
	query := "SELECT " + placeColumns + " FROM shops" + whereClause(conds) +
		fmt.Sprintf(" LIMIT $%d", len(args))

	shops, err := r.queryPlaces(ctx, query, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("results.count", len(shops)))
	return shops, nil
}

func (r *RepositoryImpl) FindGastronomy(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	ctx, span := otel.Tracer("PlaceRepo").Start(ctx, "FindGastronomy", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "gastronomy"),
	))
	defer span.End()

	filter = normalizeFilter(filter)
	conds, args := commonConditions(filter, nil)
	if len(filter.IDs) == 0 {
		if len(filter.Diets) > 0 {
			args = append(args, filter.Diets)
			conds = append(conds, fmt.Sprintf("diets && $%d", len(args)))
		}
		if len(filter.Cuisines) > 0 {
			args = append(args, filter.Cuisines)
			conds = append(conds, fmt.Sprintf("cuisines && $%d", len(args)))
		}
		if len(filter.Features) > 0 {
			args = append(args, filter.Features)
			conds = append(conds, fmt.Sprintf("features && $%d", len(args)))
		}
	}
	args = append(args, filter.Limit)

	query := "SELECT " + gastronomyColumns + " FROM gastronomy" + whereClause(conds) +
		fmt.Sprintf(" LIMIT $%d", len(args))

	result, err := r.queryGastronomy(ctx, query, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("results.count", len(result)))
	return result, nil
}

const sightseeingColumns = `
        id, name, categories,
        COALESCE(address, ''), websites,
        COALESCE(description, ''), opening_hours, image_urls,
        ST_X(location::geometry) AS longitude,
        ST_Y(location::geometry) AS latitude`

func (r *RepositoryImpl) querySightseeing(ctx context.Context, query string, args []any) ([]types.Place, error) {
	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, fmt.Errorf("failed to query sightseeing: %w", err)
	}
	defer rows.Close()

	var result []types.Place
	for rows.Next() {
		var p types.Place
		var lon, lat float64
		err := rows.Scan(&p.ID, &p.Name, &p.Categories,
			&p.Address, &p.Websites,
			&p.Description, &p.OpeningHours, &p.ImageURLs,
			&lon, &lat)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sightseeing row: %w", err)
		}
		p.Location = types.GeoPoint{Type: "Point", Coordinates: [2]float64{lon, lat}}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sightseeing rows: %w", err)
	}
	return result, nil
}

func (r *RepositoryImpl) FindSightseeing(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	ctx, span := otel.Tracer("PlaceRepo").Start(ctx, "FindSightseeing", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "sightseeing"),
	))
	defer span.End()

	filter = normalizeFilter(filter)
	conds, args := commonConditions(filter, nil)
	args = append(args, filter.Limit)
	query := "SELECT " + sightseeingColumns + " FROM sightseeing" + whereClause(conds) +
		fmt.Sprintf(" LIMIT $%d", len(args))

	result, err := r.querySightseeing(ctx, query, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("results.count", len(result)))
	return result, nil
}

const parkingColumns = `
        id, name, capacity,
        COALESCE(address, ''), COALESCE(email, ''), COALESCE(website, ''),
        opening_hours, image_urls,
        ST_X(location::geometry) AS longitude,
        ST_Y(location::geometry) AS latitude`

func scanParkingRow(rows pgx.Rows, withDistance bool) (types.ParkingLot, error) {
	var p types.ParkingLot
	var lon, lat float64
	dest := []any{&p.ID, &p.Name, &p.Capacity,
		&p.Address, &p.Email, &p.Website,
		&p.OpeningHours, &p.ImageURLs,
		&lon, &lat}
	if withDistance {
		dest = append(dest, &p.DistanceM)
	}
	if err := rows.Scan(dest...); err != nil {
		return types.ParkingLot{}, fmt.Errorf("failed to scan parking row: %w", err)
	}
	p.Location = types.GeoPoint{Type: "Point", Coordinates: [2]float64{lon, lat}}
	return p, nil
}

func (r *RepositoryImpl) FindParking(ctx context.Context, filter types.PlaceFilter) ([]types.ParkingLot, error) {
	ctx, span := otel.Tracer("PlaceRepo").Start(ctx, "FindParking", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "parking"),
	))
	defer span.End()

	filter = normalizeFilter(filter)
	conds, args := commonConditions(filter, nil)
	if len(filter.IDs) == 0 && filter.MinCapacity != nil {
		args = append(args, *filter.MinCapacity)
		conds = append(conds, fmt.Sprintf("capacity >= $%d", len(args)))
	}
	args = append(args, filter.Limit)
	query := "SELECT " + parkingColumns + " FROM parking" + whereClause(conds) +
		fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to query parking: %w", err)
	}
	defer rows.Close()

	var result []types.ParkingLot
	for rows.Next() {
		p, err := scanParkingRow(rows, false)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parking rows: %w", err)
	}
	span.SetAttributes(attribute.Int("results.count", len(result)))
	return result, nil
}

// FindClosestParking returns parking lots within the radius sorted by
// distance ascending. Latitude and longitude are required here, unlike the
// other find operations.
func (r *RepositoryImpl) FindClosestParking(ctx context.Context, latitude, longitude float64, filter types.PlaceFilter) ([]types.ParkingLot, error) {
	ctx, span := otel.Tracer("PlaceRepo").Start(ctx, "FindClosestParking", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "parking"),
		attribute.Float64("user.latitude", latitude),
		attribute.Float64("user.longitude", longitude),
	))
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = defaultClosestParkingCap
	}
	radius := filter.RadiusMeters
	if radius <= 0 {
		radius = 5000
	}
	if radius > maxSearchRadiusM {
		radius = maxSearchRadiusM
	}

	args := []any{longitude, latitude, radius}
	conds := []string{
		"ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)",
	}
	if filter.MinCapacity != nil {
		args = append(args, *filter.MinCapacity)
		conds = append(conds, fmt.Sprintf("capacity >= $%d", len(args)))
	}
	args = append(args, filter.Limit)

	query := "SELECT " + parkingColumns + `,
        ST_Distance(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
        FROM parking` + whereClause(conds) +
		fmt.Sprintf(" ORDER BY distance ASC LIMIT $%d", len(args))

	rows, err := r.pgpool.Query(ctx, query, args...)
	if err != nil {
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query failed")
		return nil, fmt.Errorf("failed to query closest parking: %w", err)
	}
	defer rows.Close()

	var result []types.ParkingLot
	for rows.Next() {
		p, err := scanParkingRow(rows, true)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parking rows: %w", err)
	}
	span.SetAttributes(attribute.Int("results.count", len(result)))
	return result, nil
}

package recommend

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/saartech/quattropole-assistant/app/observability/metrics"
	generativeAI "github.com/saartech/quattropole-assistant/internal/api/generative_ai"
	"github.com/saartech/quattropole-assistant/internal/api/places"
	"github.com/saartech/quattropole-assistant/internal/types"
)

const catalogCacheKey = "catalog"

const (
	fallbackExplanationNoAI  = "Service unavailable"
	fallbackExplanationError = "Error processing request"

	fallbackMarkdownNoAI = "I'm sorry, but I'm currently unable to process requests due to a configuration issue. Please ask the administrator to check the Gemini API key."
	fallbackMarkdown     = "I encountered an issue creating your personalized itinerary. Please try again."
)

// FunctionCaller is the slice of the Gemini client the pipeline needs.
type FunctionCaller interface {
	GenerateFunctionCall(ctx context.Context, req generativeAI.FunctionCallRequest) (map[string]any, string, error)
}

// Service produces a place suggestion for one conversation turn.
type Service interface {
	SelectAndDescribe(ctx context.Context, conversationID uuid.UUID, userPrompt string) types.Suggestion
}

// ServiceImpl runs the two-stage pipeline: a low-temperature selection call
// that picks catalog entries by name, then a high-temperature narrative call
// that writes the Markdown itinerary. A nil FunctionCaller degrades to a
// fixed apology so the chat keeps working without an API key.
type ServiceImpl struct {
	logger      *slog.Logger
	ai          FunctionCaller
	placeRepo   places.Repository
	snapshots   *cache.Cache
	snapshotTTL time.Duration
}

// NewServiceImpl creates the recommendation service. ai may be nil.
func NewServiceImpl(ai FunctionCaller, placeRepo places.Repository, snapshotTTL time.Duration, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:      logger,
		ai:          ai,
		placeRepo:   placeRepo,
		snapshots:   cache.New(snapshotTTL, 2*snapshotTTL),
		snapshotTTL: snapshotTTL,
	}
}

// SelectAndDescribe never fails the turn: every error path degrades to a
// Suggestion carrying fallback Markdown and no places.
func (s *ServiceImpl) SelectAndDescribe(ctx context.Context, conversationID uuid.UUID, userPrompt string) types.Suggestion {
	tracer := otel.Tracer("RecommendService")
	ctx, span := tracer.Start(ctx, "SelectAndDescribe", trace.WithAttributes(
		attribute.String("conversation.id", conversationID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "SelectAndDescribe"), slog.String("conversationID", conversationID.String()))

	if s.ai == nil {
		l.WarnContext(ctx, "AI client not configured, returning fallback suggestion")
		return types.Suggestion{Markdown: fallbackMarkdownNoAI, PlacesForMap: []types.MapPlace{}}
	}

	catalog := s.catalogSnapshot(ctx)

	selected := s.selectPlaces(ctx, conversationID, userPrompt, catalog)
	span.SetAttributes(
		attribute.Int("selection.shops", len(selected.Shops)),
		attribute.Int("selection.gastronomy", len(selected.Gastronomy)),
		attribute.Int("selection.sightseeing", len(selected.Sightseeing)),
	)

	markdown := s.generateNarrative(ctx, userPrompt, selected)

	suggestion := types.Suggestion{
		Markdown:     markdown,
		PlacesForMap: FormatPlacesForMap(selected),
	}
	l.InfoContext(ctx, "Suggestion generated",
		slog.Int("placesForMap", len(suggestion.PlacesForMap)))
	return suggestion
}

// catalogSnapshot returns the cached full catalog, refreshing it from the
// repository when the TTL has lapsed. A failed refresh yields empty groups;
// the selection stage then sees the "no data available" catalog sections.
func (s *ServiceImpl) catalogSnapshot(ctx context.Context) types.PlaceGroups {
	if cached, found := s.snapshots.Get(catalogCacheKey); found {
		if groups, ok := cached.(types.PlaceGroups); ok {
			return groups
		}
	}

	groups, err := s.placeRepo.GetAllPlaces(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load place catalog", slog.Any("error", err))
		return types.PlaceGroups{}
	}
	s.snapshots.Set(catalogCacheKey, groups, s.snapshotTTL)
	s.logger.DebugContext(ctx, "Place catalog refreshed",
		slog.Int("shops", len(groups.Shops)),
		slog.Int("gastronomy", len(groups.Gastronomy)),
		slog.Int("sightseeing", len(groups.Sightseeing)))
	return groups
}

func (s *ServiceImpl) selectPlaces(ctx context.Context, conversationID uuid.UUID, userPrompt string, catalog types.PlaceGroups) types.SelectedPlaces {
	tracer := otel.Tracer("RecommendService")
	ctx, span := tracer.Start(ctx, "selectPlaces")
	defer span.End()

	start := time.Now()
	args, text, err := s.ai.GenerateFunctionCall(ctx, generativeAI.FunctionCallRequest{
		SystemInstruction: selectionInstruction(conversationID.String(), buildPlacesCatalog(catalog)),
		UserPrompt:        userPrompt,
		Declaration:       selectPlacesDeclaration,
		Temperature:       0.2,
		TopP:              0.8,
		TopK:              40,
		MaxOutputTokens:   2048,
	})
	metrics.Get().LlmRequestDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", "selection")))
	if err != nil {
		metrics.Get().LlmRequestErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", "selection")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection call failed")
		s.logger.ErrorContext(ctx, "Place selection call failed", slog.Any("error", err))
		return types.SelectedPlaces{Explanation: fallbackExplanationError}
	}
	if args == nil {
		s.logger.WarnContext(ctx, "Model answered with text instead of a selection",
			slog.String("text", text))
		return types.SelectedPlaces{Explanation: fallbackExplanationError}
	}

	return s.resolveSelection(ctx, args, catalog)
}

// resolveSelection matches the model's place names against the catalog by
// exact name. Names the model invented are dropped silently and counted.
func (s *ServiceImpl) resolveSelection(ctx context.Context, args map[string]any, catalog types.PlaceGroups) types.SelectedPlaces {
	selected := types.SelectedPlaces{
		Explanation: stringArg(args, "explanation"),
	}

	var unmatched int64
	selected.Shops, unmatched = matchByName(stringSlice(args["shops"]), catalog.Shops, unmatched)
	selected.Gastronomy, unmatched = matchByName(stringSlice(args["gastronomy"]), catalog.Gastronomy, unmatched)
	selected.Sightseeing, unmatched = matchByName(stringSlice(args["sightseeing"]), catalog.Sightseeing, unmatched)

	if unmatched > 0 {
		metrics.Get().UnmatchedPlaceNamesTotal.Add(ctx, unmatched)
		s.logger.WarnContext(ctx, "Model selected names not present in catalog",
			slog.Int64("unmatched", unmatched))
	}
	return selected
}

func (s *ServiceImpl) generateNarrative(ctx context.Context, userPrompt string, selected types.SelectedPlaces) string {
	tracer := otel.Tracer("RecommendService")
	ctx, span := tracer.Start(ctx, "generateNarrative")
	defer span.End()

	start := time.Now()
	args, text, err := s.ai.GenerateFunctionCall(ctx, generativeAI.FunctionCallRequest{
		SystemInstruction: narrativeInstruction(userPrompt, selected),
		UserPrompt:        "Generate a personalized journey description",
		Declaration:       journeyDescriptionDeclaration,
		Temperature:       0.7,
		TopP:              0.95,
		TopK:              40,
		MaxOutputTokens:   4096,
	})
	metrics.Get().LlmRequestDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", "narrative")))
	if err != nil {
		metrics.Get().LlmRequestErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", "narrative")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "narrative call failed")
		s.logger.ErrorContext(ctx, "Journey narrative call failed", slog.Any("error", err))
		return fallbackMarkdown
	}

	if markdown := stringArg(args, "markdown"); markdown != "" {
		return markdown
	}
	// Some responses skip the declared call and answer in plain text.
	if text != "" {
		return text
	}
	return fallbackMarkdown
}

// matchByName filters the catalog pool against the model's name list, so the
// result keeps catalog order and a name repeated by the model matches at most
// one record. Names with no catalog entry count as unmatched.
func matchByName(names []string, pool []types.Place, unmatched int64) ([]types.Place, int64) {
	if len(names) == 0 {
		return []types.Place{}, unmatched
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}
	out := make([]types.Place, 0, len(wanted))
	for _, p := range pool {
		if _, ok := wanted[p.Name]; ok {
			out = append(out, p)
			delete(wanted, p.Name)
		}
	}
	unmatched += int64(len(wanted))
	return out, unmatched
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, _ := args[key].(string)
	return v
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

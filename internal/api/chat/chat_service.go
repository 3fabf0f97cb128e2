package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saartech/quattropole-assistant/app/observability/metrics"
	"github.com/saartech/quattropole-assistant/internal/api/recommend"
	"github.com/saartech/quattropole-assistant/internal/types"
)

const noSuggestionMarkdown = "I'm sorry, I couldn't come up with a suggestion right now."

// Broadcast event names pushed to every subscriber of a conversation.
const (
	EventNewMessage        = "newMessage"
	EventMapDetailsUpdated = "mapDetailsUpdated"
)

// Broadcaster fans an event out to all sockets subscribed to a conversation.
type Broadcaster interface {
	Broadcast(conversationID uuid.UUID, event string, payload any)
}

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	CreateConversation(ctx context.Context, seed *MapSeed) (*types.Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error)
	HandleUserMessage(ctx context.Context, conversationID uuid.UUID, content, clientID string) error
}

// MapDefaults is the initial map view for new conversations and the view
// restored when a turn yields no places.
type MapDefaults struct {
	Center types.Coordinates
	Zoom   int
}

// MapSeed overrides the initial map view of a new conversation, so an
// embedding site can open the assistant centered on its own city.
type MapSeed struct {
	Center types.Coordinates `json:"center"`
	Zoom   int               `json:"zoom"`
}

// ServiceImpl drives one conversation turn: persist and broadcast the user's
// message, run the recommendation pipeline, then persist and broadcast the
// bot's reply and any map update. Every message is stored before its
// broadcast, so the log stays the source of truth for reconnecting clients.
type ServiceImpl struct {
	logger      *slog.Logger
	repo        Repository
	recommender recommend.Service
	broadcaster Broadcaster
	mapDefaults MapDefaults
}

func NewServiceImpl(repo Repository, recommender recommend.Service, broadcaster Broadcaster, mapDefaults MapDefaults, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:      logger,
		repo:        repo,
		recommender: recommender,
		broadcaster: broadcaster,
		mapDefaults: mapDefaults,
	}
}

func (s *ServiceImpl) defaultMapDetails() types.MapDetails {
	return types.MapDetails{
		Places: []types.MapPlace{},
		Center: s.mapDefaults.Center,
		Zoom:   s.mapDefaults.Zoom,
	}
}

func (s *ServiceImpl) CreateConversation(ctx context.Context, seed *MapSeed) (*types.Conversation, error) {
	ctx, span := otel.Tracer("ChatService").Start(ctx, "CreateConversation")
	defer span.End()

	details := s.defaultMapDetails()
	if seed != nil {
		details.Center = seed.Center
		if seed.Zoom > 0 {
			details.Zoom = seed.Zoom
		}
	}
	conv, err := s.repo.CreateConversation(ctx, details)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	s.logger.InfoContext(ctx, "Conversation created", slog.String("conversationID", conv.ID.String()))
	return conv, nil
}

func (s *ServiceImpl) GetConversation(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error) {
	ctx, span := otel.Tracer("ChatService").Start(ctx, "GetConversation", trace.WithAttributes(
		attribute.String("conversation.id", conversationID.String()),
	))
	defer span.End()

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, types.ErrConversationNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	return conv, nil
}

// HandleUserMessage runs one full conversation turn. The returned error
// covers the user-facing failure modes (unknown conversation, empty content,
// storage failure); recommendation failures never surface here because the
// pipeline degrades to fallback Markdown instead.
func (s *ServiceImpl) HandleUserMessage(ctx context.Context, conversationID uuid.UUID, content, clientID string) error {
	ctx, span := otel.Tracer("ChatService").Start(ctx, "HandleUserMessage", trace.WithAttributes(
		attribute.String("conversation.id", conversationID.String()),
	))
	defer span.End()

	if content == "" {
		return fmt.Errorf("message content is required")
	}

	l := s.logger.With(slog.String("method", "HandleUserMessage"), slog.String("conversationID", conversationID.String()))

	if err := s.appendAndBroadcast(ctx, conversationID, types.Message{
		FromBot:  false,
		Type:     types.MessageTypeText,
		Text:     content,
		ClientID: clientID,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store user message")
		return err
	}

	metrics.Get().ChatTurnsTotal.Add(ctx, 1)

	suggestion := s.recommender.SelectAndDescribe(ctx, conversationID, content)

	markdown := suggestion.Markdown
	if markdown == "" {
		markdown = noSuggestionMarkdown
	}
	if err := s.appendAndBroadcast(ctx, conversationID, types.Message{
		FromBot: true,
		Type:    types.MessageTypeText,
		Text:    markdown,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store bot message")
		return err
	}

	if len(suggestion.PlacesForMap) == 0 {
		l.DebugContext(ctx, "Turn produced no places, skipping map update")
		return nil
	}

	details := s.mapDetailsFor(suggestion.PlacesForMap)

	// The map update is best effort: a failed persist still pushes the new
	// view to connected clients, it just won't survive a reload.
	if err := s.repo.UpdateMapDetails(ctx, conversationID, details); err != nil {
		l.ErrorContext(ctx, "Failed to persist map details", slog.Any("error", err))
	}
	s.broadcaster.Broadcast(conversationID, EventMapDetailsUpdated, details)

	if err := s.appendAndBroadcast(ctx, conversationID, types.Message{
		FromBot: true,
		Type:    types.MessageTypePlaces,
		Places:  suggestion.PlacesForMap,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store places message")
		return err
	}

	span.SetAttributes(attribute.Int("places.count", len(suggestion.PlacesForMap)))
	return nil
}

func (s *ServiceImpl) appendAndBroadcast(ctx context.Context, conversationID uuid.UUID, message types.Message) error {
	saved, err := s.repo.AppendMessage(ctx, conversationID, message)
	if err != nil {
		if errors.Is(err, types.ErrConversationNotFound) {
			return err
		}
		return fmt.Errorf("error appending message: %w", err)
	}
	s.broadcaster.Broadcast(conversationID, EventNewMessage, saved)
	return nil
}

// mapDetailsFor centers the map on the first located place. Places at the
// zero coordinate are treated as unlocated.
func (s *ServiceImpl) mapDetailsFor(placesForMap []types.MapPlace) types.MapDetails {
	details := s.defaultMapDetails()
	details.Places = placesForMap
	for _, p := range placesForMap {
		if p.Coordinates.Latitude != 0 || p.Coordinates.Longitude != 0 {
			details.Center = p.Coordinates
			details.Zoom = 14
			break
		}
	}
	return details
}

package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saartech/quattropole-assistant/internal/types"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) CreateConversation(ctx context.Context, mapDetails types.MapDetails) (*types.Conversation, error) {
	args := m.Called(ctx, mapDetails)
	var conv *types.Conversation
	if args.Get(0) != nil {
		conv = args.Get(0).(*types.Conversation)
	}
	return conv, args.Error(1)
}

func (m *MockChatRepository) GetConversation(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv *types.Conversation
	if args.Get(0) != nil {
		conv = args.Get(0).(*types.Conversation)
	}
	return conv, args.Error(1)
}

func (m *MockChatRepository) AppendMessage(ctx context.Context, conversationID uuid.UUID, message types.Message) (*types.Message, error) {
	args := m.Called(ctx, conversationID, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	saved := message
	saved.ID = uuid.New()
	saved.Timestamp = time.Now()
	if saved.Type == "" {
		saved.Type = types.MessageTypeText
	}
	return &saved, args.Error(1)
}

func (m *MockChatRepository) UpdateMapDetails(ctx context.Context, conversationID uuid.UUID, details types.MapDetails) error {
	args := m.Called(ctx, conversationID, details)
	return args.Error(0)
}

type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) SelectAndDescribe(ctx context.Context, conversationID uuid.UUID, userPrompt string) types.Suggestion {
	args := m.Called(ctx, conversationID, userPrompt)
	return args.Get(0).(types.Suggestion)
}

type recordedEvent struct {
	ConversationID uuid.UUID
	Event          string
	Payload        any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Broadcast(conversationID uuid.UUID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{ConversationID: conversationID, Event: event, Payload: payload})
}

func (b *recordingBroadcaster) recorded() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedEvent(nil), b.events...)
}

func newChatService(repo Repository, recommender *MockRecommender, broadcaster Broadcaster) *ServiceImpl {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaults := MapDefaults{
		Center: types.Coordinates{Latitude: 49.2336, Longitude: 6.9929},
		Zoom:   13,
	}
	return NewServiceImpl(repo, recommender, broadcaster, defaults, logger)
}

func suggestionWithPlaces() types.Suggestion {
	return types.Suggestion{
		Markdown: "## A day out",
		PlacesForMap: []types.MapPlace{
			{ID: uuid.New(), Name: "Kalinski", PlaceType: types.PlaceTypeGastronomy,
				Coordinates: types.Coordinates{Latitude: 49.2339, Longitude: 6.9945}},
			{ID: uuid.New(), Name: "Ludwigskirche", PlaceType: types.PlaceTypeSightseeing,
				Coordinates: types.Coordinates{Latitude: 49.2303, Longitude: 6.9833}},
		},
	}
}

func TestCreateConversation_SeedsDefaultMap(t *testing.T) {
	repo := new(MockChatRepository)
	broadcaster := &recordingBroadcaster{}
	svc := newChatService(repo, new(MockRecommender), broadcaster)

	expected := &types.Conversation{ID: uuid.New()}
	repo.On("CreateConversation", mock.Anything, types.MapDetails{
		Places: []types.MapPlace{},
		Center: types.Coordinates{Latitude: 49.2336, Longitude: 6.9929},
		Zoom:   13,
	}).Return(expected, nil).Once()

	conv, err := svc.CreateConversation(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, expected, conv)
	repo.AssertExpectations(t)
}

func TestCreateConversation_SeedOverridesMapView(t *testing.T) {
	repo := new(MockChatRepository)
	broadcaster := &recordingBroadcaster{}
	svc := newChatService(repo, new(MockRecommender), broadcaster)

	// Metz city centre instead of the Saarbrücken default.
	expected := &types.Conversation{ID: uuid.New()}
	repo.On("CreateConversation", mock.Anything, types.MapDetails{
		Places: []types.MapPlace{},
		Center: types.Coordinates{Latitude: 49.1193, Longitude: 6.1757},
		Zoom:   15,
	}).Return(expected, nil).Once()

	conv, err := svc.CreateConversation(context.Background(), &MapSeed{
		Center: types.Coordinates{Latitude: 49.1193, Longitude: 6.1757},
		Zoom:   15,
	})
	require.NoError(t, err)
	assert.Equal(t, expected, conv)
	repo.AssertExpectations(t)
}

func TestHandleUserMessage_FullTurn(t *testing.T) {
	conversationID := uuid.New()
	repo := new(MockChatRepository)
	recommender := new(MockRecommender)
	broadcaster := &recordingBroadcaster{}
	svc := newChatService(repo, recommender, broadcaster)

	suggestion := suggestionWithPlaces()
	recommender.On("SelectAndDescribe", mock.Anything, conversationID, "plan my evening").
		Return(suggestion).Once()

	repo.On("AppendMessage", mock.Anything, conversationID, mock.MatchedBy(func(m types.Message) bool {
		return !m.FromBot && m.Text == "plan my evening" && m.ClientID == "c-1"
	})).Return(&types.Message{}, nil).Once()
	repo.On("AppendMessage", mock.Anything, conversationID, mock.MatchedBy(func(m types.Message) bool {
		return m.FromBot && m.Type == types.MessageTypeText && m.Text == "## A day out"
	})).Return(&types.Message{}, nil).Once()
	repo.On("AppendMessage", mock.Anything, conversationID, mock.MatchedBy(func(m types.Message) bool {
		return m.FromBot && m.Type == types.MessageTypePlaces && len(m.Places) == 2
	})).Return(&types.Message{}, nil).Once()
	repo.On("UpdateMapDetails", mock.Anything, conversationID, mock.MatchedBy(func(d types.MapDetails) bool {
		return d.Zoom == 14 && d.Center == suggestion.PlacesForMap[0].Coordinates && len(d.Places) == 2
	})).Return(nil).Once()

	err := svc.HandleUserMessage(context.Background(), conversationID, "plan my evening", "c-1")
	require.NoError(t, err)

	events := broadcaster.recorded()
	require.Len(t, events, 4)
	assert.Equal(t, EventNewMessage, events[0].Event)
	assert.Equal(t, EventNewMessage, events[1].Event)
	assert.Equal(t, EventMapDetailsUpdated, events[2].Event)
	assert.Equal(t, EventNewMessage, events[3].Event)

	repo.AssertExpectations(t)
	recommender.AssertExpectations(t)
}

func TestHandleUserMessage_NoPlacesSkipsMapUpdate(t *testing.T) {
	conversationID := uuid.New()
	repo := new(MockChatRepository)
	recommender := new(MockRecommender)
	broadcaster := &recordingBroadcaster{}
	svc := newChatService(repo, recommender, broadcaster)

	recommender.On("SelectAndDescribe", mock.Anything, conversationID, "hello").
		Return(types.Suggestion{Markdown: "Hi! What are you in the mood for?"}).Once()
	repo.On("AppendMessage", mock.Anything, conversationID, mock.Anything).
		Return(&types.Message{}, nil).Twice()

	err := svc.HandleUserMessage(context.Background(), conversationID, "hello", "")
	require.NoError(t, err)

	events := broadcaster.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, EventNewMessage, events[0].Event)
	assert.Equal(t, EventNewMessage, events[1].Event)
	repo.AssertNotCalled(t, "UpdateMapDetails", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleUserMessage_EmptyMarkdownGetsApology(t *testing.T) {
	conversationID := uuid.New()
	repo := new(MockChatRepository)
	recommender := new(MockRecommender)
	svc := newChatService(repo, recommender, &recordingBroadcaster{})

	recommender.On("SelectAndDescribe", mock.Anything, conversationID, "hm").
		Return(types.Suggestion{}).Once()
	repo.On("AppendMessage", mock.Anything, conversationID, mock.MatchedBy(func(m types.Message) bool {
		return !m.FromBot
	})).Return(&types.Message{}, nil).Once()
	repo.On("AppendMessage", mock.Anything, conversationID, mock.MatchedBy(func(m types.Message) bool {
		return m.FromBot && m.Text == noSuggestionMarkdown
	})).Return(&types.Message{}, nil).Once()

	err := svc.HandleUserMessage(context.Background(), conversationID, "hm", "")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestHandleUserMessage_UnknownConversation(t *testing.T) {
	conversationID := uuid.New()
	repo := new(MockChatRepository)
	recommender := new(MockRecommender)
	svc := newChatService(repo, recommender, &recordingBroadcaster{})

	repo.On("AppendMessage", mock.Anything, conversationID, mock.Anything).
		Return(nil, types.ErrConversationNotFound).Once()

	err := svc.HandleUserMessage(context.Background(), conversationID, "hi", "")
	assert.ErrorIs(t, err, types.ErrConversationNotFound)
	recommender.AssertNotCalled(t, "SelectAndDescribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleUserMessage_EmptyContentRejected(t *testing.T) {
	svc := newChatService(new(MockChatRepository), new(MockRecommender), &recordingBroadcaster{})
	err := svc.HandleUserMessage(context.Background(), uuid.New(), "", "")
	assert.Error(t, err)
}

func TestHandleUserMessage_MapPersistFailureIsBestEffort(t *testing.T) {
	conversationID := uuid.New()
	repo := new(MockChatRepository)
	recommender := new(MockRecommender)
	broadcaster := &recordingBroadcaster{}
	svc := newChatService(repo, recommender, broadcaster)

	recommender.On("SelectAndDescribe", mock.Anything, conversationID, "food").
		Return(suggestionWithPlaces()).Once()
	repo.On("AppendMessage", mock.Anything, conversationID, mock.Anything).
		Return(&types.Message{}, nil).Times(3)
	repo.On("UpdateMapDetails", mock.Anything, conversationID, mock.Anything).
		Return(errors.New("connection reset")).Once()

	err := svc.HandleUserMessage(context.Background(), conversationID, "food", "")
	require.NoError(t, err)

	// The live map update still reaches subscribers.
	events := broadcaster.recorded()
	var sawMapUpdate bool
	for _, e := range events {
		if e.Event == EventMapDetailsUpdated {
			sawMapUpdate = true
		}
	}
	assert.True(t, sawMapUpdate)
}

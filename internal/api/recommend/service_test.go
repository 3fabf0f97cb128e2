package recommend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	generativeAI "github.com/saartech/quattropole-assistant/internal/api/generative_ai"
	"github.com/saartech/quattropole-assistant/internal/types"
)

type MockFunctionCaller struct {
	mock.Mock
}

func (m *MockFunctionCaller) GenerateFunctionCall(ctx context.Context, req generativeAI.FunctionCallRequest) (map[string]any, string, error) {
	args := m.Called(ctx, req)
	var result map[string]any
	if args.Get(0) != nil {
		result = args.Get(0).(map[string]any)
	}
	return result, args.String(1), args.Error(2)
}

type MockPlaceRepository struct {
	mock.Mock
}

func (m *MockPlaceRepository) GetAllPlaces(ctx context.Context) (types.PlaceGroups, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.PlaceGroups), args.Error(1)
}

func (m *MockPlaceRepository) FindShops(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]types.Place), args.Error(1)
}

func (m *MockPlaceRepository) FindGastronomy(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]types.Place), args.Error(1)
}

func (m *MockPlaceRepository) FindSightseeing(ctx context.Context, filter types.PlaceFilter) ([]types.Place, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]types.Place), args.Error(1)
}

func (m *MockPlaceRepository) FindParking(ctx context.Context, filter types.PlaceFilter) ([]types.ParkingLot, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]types.ParkingLot), args.Error(1)
}

func (m *MockPlaceRepository) FindClosestParking(ctx context.Context, latitude, longitude float64, filter types.PlaceFilter) ([]types.ParkingLot, error) {
	args := m.Called(ctx, latitude, longitude, filter)
	return args.Get(0).([]types.ParkingLot), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog() types.PlaceGroups {
	return types.PlaceGroups{
		Shops: []types.Place{
			{ID: uuid.New(), Name: "Buchhandlung König", Categories: []string{"Books"},
				Location: types.GeoPoint{Type: "Point", Coordinates: [2]float64{6.9969, 49.2354}}},
		},
		Gastronomy: []types.Place{
			{ID: uuid.New(), Name: "Kalinski", Categories: []string{"Imbiss"},
				Cuisines: []string{"German"}, Diets: []string{"vegetarian"},
				Location: types.GeoPoint{Type: "Point", Coordinates: [2]float64{6.9945, 49.2339}}},
			{ID: uuid.New(), Name: "La Vita", Categories: []string{"Restaurant"},
				Cuisines: []string{"Italian"},
				Location: types.GeoPoint{Type: "Point", Coordinates: [2]float64{6.9901, 49.2330}}},
		},
		Sightseeing: []types.Place{
			{ID: uuid.New(), Name: "Ludwigskirche", Categories: []string{"Church"},
				Websites: []string{"https://ludwigskirche.example"},
				Location: types.GeoPoint{Type: "Point", Coordinates: [2]float64{6.9833, 49.2303}}},
		},
	}
}

func TestSelectAndDescribe_HappyPath(t *testing.T) {
	ctx := context.Background()
	catalog := testCatalog()

	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(catalog, nil).Once()

	ai := new(MockFunctionCaller)
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == selectPlacesDeclaration
	})).Return(map[string]any{
		"shops":       []any{"Buchhandlung König"},
		"gastronomy":  []any{"Kalinski"},
		"sightseeing": []any{"Ludwigskirche"},
		"explanation": "A compact city walk.",
	}, "", nil).Once()
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == journeyDescriptionDeclaration
	})).Return(map[string]any{
		"markdown": "## Your Day in Saarbrücken",
	}, "", nil).Once()

	svc := NewServiceImpl(ai, repo, time.Minute, testLogger())
	suggestion := svc.SelectAndDescribe(ctx, uuid.New(), "a bookshop, lunch and a church")

	assert.Equal(t, "## Your Day in Saarbrücken", suggestion.Markdown)
	require.Len(t, suggestion.PlacesForMap, 3)
	// Ordered shop, gastronomy, sightseeing.
	assert.Equal(t, types.PlaceTypeShop, suggestion.PlacesForMap[0].PlaceType)
	assert.Equal(t, types.PlaceTypeGastronomy, suggestion.PlacesForMap[1].PlaceType)
	assert.Equal(t, types.PlaceTypeSightseeing, suggestion.PlacesForMap[2].PlaceType)
	assert.InDelta(t, 49.2354, suggestion.PlacesForMap[0].Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 6.9969, suggestion.PlacesForMap[0].Coordinates.Longitude, 1e-9)
	// Sightseeing website falls back to the first entry of Websites.
	assert.Equal(t, "https://ludwigskirche.example", suggestion.PlacesForMap[2].Website)

	ai.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestSelectAndDescribe_UnmatchedNamesDropped(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(testCatalog(), nil).Once()

	ai := new(MockFunctionCaller)
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == selectPlacesDeclaration
	})).Return(map[string]any{
		"gastronomy":  []any{"Kalinski", "Chez Imaginary"},
		"explanation": "Lunch options.",
	}, "", nil).Once()
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == journeyDescriptionDeclaration
	})).Return(map[string]any{"markdown": "Lunch at Kalinski."}, "", nil).Once()

	svc := NewServiceImpl(ai, repo, time.Minute, testLogger())
	suggestion := svc.SelectAndDescribe(ctx, uuid.New(), "where can I eat?")

	require.Len(t, suggestion.PlacesForMap, 1)
	assert.Equal(t, "Kalinski", suggestion.PlacesForMap[0].Name)
}

func TestSelectAndDescribe_DuplicateNamesCollapsed(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(testCatalog(), nil).Once()

	ai := new(MockFunctionCaller)
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == selectPlacesDeclaration
	})).Return(map[string]any{
		"gastronomy":  []any{"Kalinski", "Kalinski", "La Vita"},
		"explanation": "Lunch options.",
	}, "", nil).Once()
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == journeyDescriptionDeclaration
	})).Return(map[string]any{"markdown": "Two lunch stops."}, "", nil).Once()

	svc := NewServiceImpl(ai, repo, time.Minute, testLogger())
	suggestion := svc.SelectAndDescribe(ctx, uuid.New(), "where can I eat?")

	// A name repeated by the model maps to a single place.
	require.Len(t, suggestion.PlacesForMap, 2)
	assert.Equal(t, "Kalinski", suggestion.PlacesForMap[0].Name)
	assert.Equal(t, "La Vita", suggestion.PlacesForMap[1].Name)
}

func TestSelectAndDescribe_SelectionFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(testCatalog(), nil).Once()

	ai := new(MockFunctionCaller)
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == selectPlacesDeclaration
	})).Return(nil, "", errors.New("quota exceeded")).Once()
	// The narrative stage still runs over the empty selection.
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == journeyDescriptionDeclaration
	})).Return(map[string]any{"markdown": "Sorry, nothing to suggest."}, "", nil).Once()

	svc := NewServiceImpl(ai, repo, time.Minute, testLogger())
	suggestion := svc.SelectAndDescribe(ctx, uuid.New(), "anything")

	assert.Empty(t, suggestion.PlacesForMap)
	assert.Equal(t, "Sorry, nothing to suggest.", suggestion.Markdown)
}

func TestSelectAndDescribe_NarrativeFailureUsesFallbackMarkdown(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(testCatalog(), nil).Once()

	ai := new(MockFunctionCaller)
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == selectPlacesDeclaration
	})).Return(map[string]any{
		"shops":       []any{"Buchhandlung König"},
		"explanation": "Books.",
	}, "", nil).Once()
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == journeyDescriptionDeclaration
	})).Return(nil, "", errors.New("timeout")).Once()

	svc := NewServiceImpl(ai, repo, time.Minute, testLogger())
	suggestion := svc.SelectAndDescribe(ctx, uuid.New(), "books")

	assert.Equal(t, fallbackMarkdown, suggestion.Markdown)
	// Resolved places still reach the map even when the narrative fails.
	require.Len(t, suggestion.PlacesForMap, 1)
}

func TestSelectAndDescribe_NarrativePlainTextAccepted(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(testCatalog(), nil).Once()

	ai := new(MockFunctionCaller)
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == selectPlacesDeclaration
	})).Return(map[string]any{"explanation": "ok"}, "", nil).Once()
	ai.On("GenerateFunctionCall", mock.Anything, mock.MatchedBy(func(req generativeAI.FunctionCallRequest) bool {
		return req.Declaration == journeyDescriptionDeclaration
	})).Return(nil, "Plain text itinerary", nil).Once()

	svc := NewServiceImpl(ai, repo, time.Minute, testLogger())
	suggestion := svc.SelectAndDescribe(ctx, uuid.New(), "anything")

	assert.Equal(t, "Plain text itinerary", suggestion.Markdown)
}

func TestSelectAndDescribe_NoAIClient(t *testing.T) {
	repo := new(MockPlaceRepository)
	svc := NewServiceImpl(nil, repo, time.Minute, testLogger())

	suggestion := svc.SelectAndDescribe(context.Background(), uuid.New(), "anything")

	assert.Equal(t, fallbackMarkdownNoAI, suggestion.Markdown)
	assert.Empty(t, suggestion.PlacesForMap)
	repo.AssertNotCalled(t, "GetAllPlaces", mock.Anything)
}

func TestCatalogSnapshot_CachedAcrossTurns(t *testing.T) {
	ctx := context.Background()
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).Return(testCatalog(), nil).Once()

	svc := NewServiceImpl(new(MockFunctionCaller), repo, time.Minute, testLogger())

	first := svc.catalogSnapshot(ctx)
	second := svc.catalogSnapshot(ctx)

	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "GetAllPlaces", 1)
}

func TestCatalogSnapshot_RepositoryErrorYieldsEmptyGroups(t *testing.T) {
	repo := new(MockPlaceRepository)
	repo.On("GetAllPlaces", mock.Anything).
		Return(types.PlaceGroups{}, types.ErrRepositoryUnavailable).Once()

	svc := NewServiceImpl(new(MockFunctionCaller), repo, time.Minute, testLogger())
	groups := svc.catalogSnapshot(context.Background())

	assert.Empty(t, groups.Shops)
	assert.Empty(t, groups.Gastronomy)
	assert.Empty(t, groups.Sightseeing)
}

package types

import (
	"time"

	"github.com/google/uuid"
)

// PlaceType tags a place with the collection it came from.
type PlaceType string

const (
	PlaceTypeShop        PlaceType = "shop"
	PlaceTypeGastronomy  PlaceType = "gastronomy"
	PlaceTypeSightseeing PlaceType = "sightseeing"
)

// GeoPoint is a GeoJSON point. Coordinates are stored [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Coordinates is the flattened form used by map components.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a point of interest from one of the three catalog collections.
// The variants share a shape; gastronomy carries cuisines/diets/features,
// sightseeing carries multiple websites and shops a phone number.
type Place struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	Categories     []string          `json:"categories"`
	Address        string            `json:"address,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Website        string            `json:"website,omitempty"`
	Websites       []string          `json:"websites,omitempty"`
	Description    string            `json:"description,omitempty"`
	OpeningHours   map[string]string `json:"openingHours,omitempty"`
	ImageURLs      []string          `json:"imageUrls,omitempty"`
	Cuisines       []string          `json:"cuisines,omitempty"`
	Diets          []string          `json:"diets,omitempty"`
	Features       []string          `json:"features,omitempty"`
	PaymentMethods []string          `json:"paymentMethods,omitempty"`
	Location       GeoPoint          `json:"location"`
	CreatedAt      time.Time         `json:"createdAt,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt,omitempty"`
}

// PlaceGroups is a full snapshot of the three catalog collections.
type PlaceGroups struct {
	Shops       []Place `json:"shops"`
	Gastronomy  []Place `json:"gastronomy"`
	Sightseeing []Place `json:"sightseeing"`
}

// SelectedPlaces carries the resolved records for a model selection plus the
// model's stated rationale.
type SelectedPlaces struct {
	Shops       []Place
	Gastronomy  []Place
	Sightseeing []Place
	Explanation string
}

// MapPlace is a Place reshaped for map rendering: location flattened into
// Coordinates and the owning collection stamped as PlaceType. Derived data,
// recomputed every turn, never persisted as the source of truth.
type MapPlace struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	PlaceType      PlaceType         `json:"placeType"`
	Coordinates    Coordinates       `json:"coordinates"`
	Categories     []string          `json:"categories"`
	Address        string            `json:"address,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Website        string            `json:"website,omitempty"`
	Websites       []string          `json:"websites,omitempty"`
	Description    string            `json:"description,omitempty"`
	OpeningHours   map[string]string `json:"openingHours,omitempty"`
	ImageURLs      []string          `json:"imageUrls,omitempty"`
	Cuisines       []string          `json:"cuisines,omitempty"`
	Diets          []string          `json:"diets,omitempty"`
	Features       []string          `json:"features,omitempty"`
	PaymentMethods []string          `json:"paymentMethods,omitempty"`
}

// Suggestion is the recommendation pipeline's final output for one turn.
type Suggestion struct {
	Markdown     string     `json:"markdown"`
	PlacesForMap []MapPlace `json:"placesForMap"`
}

// ParkingLot is a parking facility. Queried by the listing API and the
// closest-parking lookup, not part of the conversational catalog.
type ParkingLot struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Capacity     *int              `json:"capacity,omitempty"`
	Address      string            `json:"address,omitempty"`
	Email        string            `json:"email,omitempty"`
	Website      string            `json:"website,omitempty"`
	OpeningHours map[string]string `json:"openingHours,omitempty"`
	ImageURLs    []string          `json:"imageUrls,omitempty"`
	Location     GeoPoint          `json:"location"`
	DistanceM    *float64          `json:"distanceMeters,omitempty"`
}

// PlaceFilter is the uniform query contract shared by the find operations.
// IDs short-circuits every other filter when present.
type PlaceFilter struct {
	Name         string
	Categories   []string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters float64
	Diets        []string
	Cuisines     []string
	Features     []string
	MinCapacity  *int
	IDs          []uuid.UUID
	Limit        int
}

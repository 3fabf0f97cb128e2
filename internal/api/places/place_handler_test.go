package places

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	t.Run("full query", func(t *testing.T) {
		id := uuid.New()
		query := url.Values{
			"name":        {"markt"},
			"categories":  {"Bar", "Restaurant"},
			"diets":       {"vegan"},
			"cuisines":    {"Italian"},
			"features":    {"outdoor seating"},
			"latitude":    {"49.2336"},
			"longitude":   {"6.9929"},
			"radius":      {"2500"},
			"minCapacity": {"50"},
			"limit":       {"5"},
			"ids":         {id.String()},
		}

		filter := parseFilter(query)

		assert.Equal(t, "markt", filter.Name)
		assert.Equal(t, []string{"Bar", "Restaurant"}, filter.Categories)
		assert.Equal(t, []string{"vegan"}, filter.Diets)
		assert.Equal(t, []string{"Italian"}, filter.Cuisines)
		assert.Equal(t, []string{"outdoor seating"}, filter.Features)
		require.NotNil(t, filter.Latitude)
		assert.InDelta(t, 49.2336, *filter.Latitude, 1e-9)
		require.NotNil(t, filter.Longitude)
		assert.InDelta(t, 6.9929, *filter.Longitude, 1e-9)
		assert.Equal(t, 2500.0, filter.RadiusMeters)
		require.NotNil(t, filter.MinCapacity)
		assert.Equal(t, 50, *filter.MinCapacity)
		assert.Equal(t, 5, filter.Limit)
		assert.Equal(t, []uuid.UUID{id}, filter.IDs)
	})

	t.Run("empty query", func(t *testing.T) {
		filter := parseFilter(url.Values{})
		assert.Empty(t, filter.Name)
		assert.Nil(t, filter.Latitude)
		assert.Nil(t, filter.Longitude)
		assert.Zero(t, filter.RadiusMeters)
		assert.Zero(t, filter.Limit)
	})

	t.Run("malformed values ignored", func(t *testing.T) {
		query := url.Values{
			"latitude": {"north"},
			"limit":    {"many"},
			"ids":      {"not-a-uuid"},
		}
		filter := parseFilter(query)
		assert.Nil(t, filter.Latitude)
		assert.Zero(t, filter.Limit)
		assert.Empty(t, filter.IDs)
	})
}

package places

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saartech/quattropole-assistant/internal/types"
)

func TestNormalizeFilter(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		filter := normalizeFilter(types.PlaceFilter{})
		assert.Equal(t, defaultSearchLimit, filter.Limit)
		assert.Equal(t, defaultSearchRadiusM, filter.RadiusMeters)
	})

	t.Run("radius clamped to ceiling", func(t *testing.T) {
		filter := normalizeFilter(types.PlaceFilter{RadiusMeters: 80000})
		assert.Equal(t, maxSearchRadiusM, filter.RadiusMeters)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		filter := normalizeFilter(types.PlaceFilter{RadiusMeters: 2500, Limit: 3})
		assert.Equal(t, 2500.0, filter.RadiusMeters)
		assert.Equal(t, 3, filter.Limit)
	})
}

func TestCommonConditions(t *testing.T) {
	t.Run("ids short-circuit everything else", func(t *testing.T) {
		lat, lon := 49.23, 6.99
		filter := types.PlaceFilter{
			IDs:        []uuid.UUID{uuid.New()},
			Name:       "Kalinski",
			Categories: []string{"Imbiss"},
			Latitude:   &lat,
			Longitude:  &lon,
		}
		conds, args := commonConditions(filter, nil)
		require.Len(t, conds, 1)
		assert.Equal(t, "id = ANY($1)", conds[0])
		assert.Len(t, args, 1)
	})

	t.Run("name and categories", func(t *testing.T) {
		filter := types.PlaceFilter{Name: "café", Categories: []string{"Bar", "Restaurant"}}
		conds, args := commonConditions(filter, nil)
		require.Len(t, conds, 2)
		assert.Equal(t, "name ILIKE $1", conds[0])
		assert.Equal(t, "categories && $2", conds[1])
		assert.Equal(t, "%café%", args[0])
	})

	t.Run("geo filter uses both coordinates", func(t *testing.T) {
		lat, lon := 49.23, 6.99
		filter := normalizeFilter(types.PlaceFilter{Latitude: &lat, Longitude: &lon})
		conds, args := commonConditions(filter, nil)
		require.Len(t, conds, 1)
		assert.Contains(t, conds[0], "ST_DWithin")
		require.Len(t, args, 3)
		assert.Equal(t, lon, args[0])
		assert.Equal(t, lat, args[1])
		assert.Equal(t, defaultSearchRadiusM, args[2])
	})

	t.Run("latitude alone is ignored", func(t *testing.T) {
		lat := 49.23
		conds, _ := commonConditions(types.PlaceFilter{Latitude: &lat}, nil)
		assert.Empty(t, conds)
	})

	t.Run("argument numbering continues from seed args", func(t *testing.T) {
		filter := types.PlaceFilter{Name: "k"}
		conds, args := commonConditions(filter, []any{"seed"})
		require.Len(t, conds, 1)
		assert.Equal(t, "name ILIKE $2", conds[0])
		assert.Len(t, args, 2)
	})
}

func TestWhereClause(t *testing.T) {
	assert.Equal(t, "", whereClause(nil))
	assert.Equal(t, " WHERE a AND b", whereClause([]string{"a", "b"}))
}

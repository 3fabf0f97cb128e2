package recommend

import "github.com/saartech/quattropole-assistant/internal/types"

func toMapPlace(p types.Place, placeType types.PlaceType) types.MapPlace {
	website := p.Website
	if website == "" && len(p.Websites) > 0 {
		website = p.Websites[0]
	}
	return types.MapPlace{
		ID:        p.ID,
		Name:      p.Name,
		PlaceType: placeType,
		Coordinates: types.Coordinates{
			Latitude:  p.Location.Coordinates[1],
			Longitude: p.Location.Coordinates[0],
		},
		Categories:     p.Categories,
		Address:        p.Address,
		Phone:          p.Phone,
		Website:        website,
		Websites:       p.Websites,
		Description:    p.Description,
		OpeningHours:   p.OpeningHours,
		ImageURLs:      p.ImageURLs,
		Cuisines:       p.Cuisines,
		Diets:          p.Diets,
		Features:       p.Features,
		PaymentMethods: p.PaymentMethods,
	}
}

// FormatPlacesForMap flattens a selection into the single ordered list the
// map layer renders: shops first, then gastronomy, then sightseeing.
func FormatPlacesForMap(selected types.SelectedPlaces) []types.MapPlace {
	out := make([]types.MapPlace, 0,
		len(selected.Shops)+len(selected.Gastronomy)+len(selected.Sightseeing))
	for _, p := range selected.Shops {
		out = append(out, toMapPlace(p, types.PlaceTypeShop))
	}
	for _, p := range selected.Gastronomy {
		out = append(out, toMapPlace(p, types.PlaceTypeGastronomy))
	}
	for _, p := range selected.Sightseeing {
		out = append(out, toMapPlace(p, types.PlaceTypeSightseeing))
	}
	return out
}

package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/saartech/quattropole-assistant/internal/types"
)

const descriptionPreviewLen = 100

var selectPlacesDeclaration = &genai.FunctionDeclaration{
	Name:        "select_places",
	Description: "Selects the most relevant places from Saarbrücken based on the user's request",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"shops": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Array of shop names from the available places that match the user's request",
			},
			"gastronomy": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Array of restaurant/cafe names from the available places that match the user's request",
			},
			"sightseeing": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Array of sightseeing spot names from the available places that match the user's request",
			},
			"explanation": {
				Type:        genai.TypeString,
				Description: "Brief explanation of why these places were selected based on the user's request",
			},
		},
		Required: []string{"explanation"},
	},
}

var journeyDescriptionDeclaration = &genai.FunctionDeclaration{
	Name:        "generate_journey_description",
	Description: "Generates a personalized Markdown journey description for the selected places",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"markdown": {
				Type:        genai.TypeString,
				Description: "A beautiful, engaging Markdown description of the journey with all the selected places",
			},
		},
		Required: []string{"markdown"},
	},
}

func previewDescription(description string) string {
	if description == "" {
		return ""
	}
	// Truncate on rune boundaries; descriptions carry umlauts and accents.
	runes := []rune(description)
	if len(runes) > descriptionPreviewLen {
		return fmt.Sprintf(" (%s...)", string(runes[:descriptionPreviewLen]))
	}
	return fmt.Sprintf(" (%s)", description)
}

func catalogLine(p types.Place) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s: %s", p.Name, strings.Join(p.Categories, ", "))
	if len(p.Cuisines) > 0 {
		fmt.Fprintf(&b, " [Cuisines: %s]", strings.Join(p.Cuisines, ", "))
	}
	if len(p.Diets) > 0 {
		fmt.Fprintf(&b, " [Diets: %s]", strings.Join(p.Diets, ", "))
	}
	if len(p.Features) > 0 {
		fmt.Fprintf(&b, " [Features: %s]", strings.Join(p.Features, ", "))
	}
	b.WriteString(previewDescription(p.Description))
	return b.String()
}

func catalogSection(places []types.Place, emptyNote string) string {
	if len(places) == 0 {
		return emptyNote
	}
	lines := make([]string, 0, len(places))
	for _, p := range places {
		lines = append(lines, catalogLine(p))
	}
	return strings.Join(lines, "\n")
}

// buildPlacesCatalog renders the full snapshot as the textual catalog the
// selection stage reasons over. Names are the only cross-reference key the
// model ever sees, so they must match the stored records exactly.
func buildPlacesCatalog(groups types.PlaceGroups) string {
	return fmt.Sprintf(`
AVAILABLE PLACES IN SAARBRÜCKEN:

Shops:
%s

Gastronomy (Restaurants, Cafes, Bars):
%s

Sightseeing Spots:
%s
`,
		catalogSection(groups.Shops, "No shop data available"),
		catalogSection(groups.Gastronomy, "No gastronomy data available"),
		catalogSection(groups.Sightseeing, "No sightseeing data available"))
}

func selectionInstruction(conversationID string, catalog string) string {
	return fmt.Sprintf(`
# Saarbrücken Visit Planner (ConversationID: %s)

%s

## Your Task
You are an expert local guide for Saarbrücken. Your goal is to analyze the user's request and select the most relevant places from the available options above. Choose places that would create a cohesive, enjoyable visit experience.

## Selection Guidelines:
- Select 1-3 places of each type that best match the user's request
- If the user doesn't mention or need a specific type, don't select any places of that type
- Be specific and selective - don't just list everything
- Consider proximity and logical visit order when possible
- Select places that complement each other for a cohesive journey
- Pay attention to categories, diets, cuisines, and features to match specific user requirements
- Be particularly attentive to dietary needs (vegan, vegetarian, gluten-free, etc.)
- For gastronomy, match cuisine types to what the user is looking for
`, conversationID, catalog)
}

// placeForNarrative is the metadata handed to the narrative stage.
type placeForNarrative struct {
	Type         string            `json:"type"`
	Name         string            `json:"name"`
	Address      string            `json:"address"`
	Categories   []string          `json:"categories"`
	Description  string            `json:"description"`
	Website      string            `json:"website,omitempty"`
	Cuisines     []string          `json:"cuisines,omitempty"`
	Diets        []string          `json:"diets,omitempty"`
	Features     []string          `json:"features,omitempty"`
	OpeningHours map[string]string `json:"openingHours"`
}

func narrativePlace(p types.Place, placeType string) placeForNarrative {
	website := p.Website
	if website == "" && len(p.Websites) > 0 {
		website = p.Websites[0]
	}
	return placeForNarrative{
		Type:         placeType,
		Name:         p.Name,
		Address:      p.Address,
		Categories:   p.Categories,
		Description:  p.Description,
		Website:      website,
		Cuisines:     p.Cuisines,
		Diets:        p.Diets,
		Features:     p.Features,
		OpeningHours: p.OpeningHours,
	}
}

func narrativeInstruction(userPrompt string, selected types.SelectedPlaces) string {
	placesForPrompt := make([]placeForNarrative, 0,
		len(selected.Shops)+len(selected.Gastronomy)+len(selected.Sightseeing))
	for _, p := range selected.Shops {
		placesForPrompt = append(placesForPrompt, narrativePlace(p, "shop"))
	}
	for _, p := range selected.Gastronomy {
		placesForPrompt = append(placesForPrompt, narrativePlace(p, "restaurant/cafe"))
	}
	for _, p := range selected.Sightseeing {
		placesForPrompt = append(placesForPrompt, narrativePlace(p, "attraction"))
	}

	placesJSON, err := json.MarshalIndent(placesForPrompt, "", "  ")
	if err != nil {
		placesJSON = []byte("[]")
	}
	explanation := selected.Explanation
	if explanation == "" {
		explanation = "These places were selected based on your request."
	}

	return fmt.Sprintf(`
# Markdown Journey Generator for Saarbrücken Visit

You are an expert tour guide for Saarbrücken creating personalized travel itineraries. Your task is to create an engaging, personalized Markdown response for a visitor.

## User Request:
"%s"

## Selected Places:
%s

## Selection Explanation:
%s

## Guidelines:
1. Generate beautiful, structured Markdown that presents the places in a coherent, engaging narrative
2. Include an introduction that acknowledges the user's request and introduces the selected places
3. For each place, create a section with:
   - Heading with place name (use ### for each place)
   - Brief, engaging description that highlights its appeal
   - Practical details (address, website) formatted nicely
   - Opening Hours: Summarize the opening hours into a short, concise sentence (e.g., "Usually open 9 AM - 5 PM on weekdays and 10 AM - 2 PM on Saturdays."). Avoid using bullet points or raw data for opening hours.
   - Any special features or recommendations
   - For restaurants, highlight cuisines and dietary options
   - For attractions, mention key aspects from categories
   - For shops, highlight what makes them special
4. Suggest a logical order to visit the places based on location and type
5. Include a friendly conclusion
6. Use Markdown formatting effectively (headers, emphasis, lists)
7. Keep the tone conversational, enthusiastic and helpful
8. Include the explanation of why these places were selected, woven naturally into the narrative
`, userPrompt, placesJSON, explanation)
}

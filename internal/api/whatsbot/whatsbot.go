// Package whatsbot answers Twilio WhatsApp webhooks with a small
// language -> city -> query flow and hands Saarbrücken questions off to the
// assistant endpoint.
package whatsbot

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

type sessionStage string

const (
	stageLanguage sessionStage = "language"
	stageCity     sessionStage = "city"
	stageQuery    sessionStage = "query"
)

const supportedCity = "saarbrücken"

var developmentCities = map[string]struct{}{
	"metz":       {},
	"trier":      {},
	"luxembourg": {},
}

// session is one WhatsApp sender's progress through the flow, keyed by the
// Twilio From number and expired by the cache TTL.
type session struct {
	Language     string
	SelectedCity string
	Awaiting     sessionStage
}

// twimlResponse is the
// <Response><Message>...</Message></Response> body Twilio expects back.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

type Handler struct {
	logger       *slog.Logger
	sessions     *cache.Cache
	assistantURL string
}

func NewHandler(assistantURL string, sessionTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		sessions:     cache.New(sessionTTL, 2*sessionTTL),
		assistantURL: assistantURL,
	}
}

func (h *Handler) sessionFor(from string) *session {
	if cached, found := h.sessions.Get(from); found {
		if s, ok := cached.(*session); ok {
			return s
		}
	}
	s := &session{Awaiting: stageLanguage}
	h.sessions.SetDefault(from, s)
	return s
}

// HandleWebhook processes one inbound message and replies with TwiML.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	rawBody := r.PostFormValue("Body")
	from := r.PostFormValue("From")
	body := strings.ToLower(strings.TrimSpace(rawBody))

	h.logger.DebugContext(r.Context(), "WhatsApp message received",
		slog.String("from", from), slog.String("body", rawBody))

	s := h.sessionFor(from)
	var reply string
	switch {
	case s.Awaiting == stageLanguage:
		reply = h.handleLanguage(s, body)
	case s.Awaiting == stageCity:
		reply = h.handleCity(s, body)
	case s.Awaiting == stageQuery && s.SelectedCity == supportedCity:
		reply = h.handleQuery(s, rawBody)
	default:
		h.logger.Warn("WhatsApp session in unexpected state, resetting",
			slog.String("from", from), slog.String("stage", string(s.Awaiting)))
		*s = session{Awaiting: stageLanguage}
		reply = "Sorry, something went wrong. Let's start over. " + languageMenu
	}
	// Refresh the TTL so an active flow does not expire mid-conversation.
	h.sessions.SetDefault(from, s)

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	if err := xml.NewEncoder(w).Encode(twimlResponse{Message: reply}); err != nil {
		h.logger.Error("Failed to encode TwiML response", slog.Any("error", err))
	}
}

const languageMenu = "Welcome! Please choose your language by replying with the number or name:\n1. English\n2. Français (French)\n3. Deutsch (German)"

func (h *Handler) handleLanguage(s *session, body string) string {
	var confirmation string
	switch body {
	case "1", "english":
		s.Language = "en"
		confirmation = "You have selected English."
	case "2", "français", "francais", "french":
		s.Language = "fr"
		confirmation = "Vous avez sélectionné le Français."
	case "3", "deutsch", "german":
		s.Language = "de"
		confirmation = "Sie haben Deutsch gewählt."
	default:
		return languageMenu
	}

	s.Awaiting = stageCity
	cityPrompt := map[string]string{
		"en": "Which city are you interested in? (e.g., Saarbrücken, Metz, Trier, Luxembourg)",
		"fr": "Quelle ville vous intéresse ? (par ex. Sarrebruck, Metz, Trèves, Luxembourg)",
		"de": "Für welche Stadt interessieren Sie sich? (z.B. Saarbrücken, Metz, Trier, Luxemburg)",
	}[s.Language]
	return confirmation + "\n" + cityPrompt
}

func (h *Handler) handleCity(s *session, body string) string {
	if body == supportedCity {
		s.SelectedCity = supportedCity
		s.Awaiting = stageQuery
		return map[string]string{
			"en": "Great! You've selected Saarbrücken. What would you like to know?",
			"fr": "Parfait ! Vous avez sélectionné Sarrebruck. Que souhaitez-vous savoir ?",
			"de": "Ausgezeichnet! Sie haben Saarbrücken gewählt. Was möchten Sie wissen?",
		}[s.Language]
	}

	if _, inDevelopment := developmentCities[body]; inDevelopment {
		cityName := strings.ToUpper(body[:1]) + body[1:]
		return map[string]string{
			"en": fmt.Sprintf("Support for %s is still in development. Please choose another city, or select Saarbrücken for now.", cityName),
			"fr": fmt.Sprintf("Le support pour %s est encore en développement. Veuillez choisir une autre ville, ou sélectionner Sarrebruck pour le moment.", cityName),
			"de": fmt.Sprintf("Die Unterstützung für %s befindet sich noch in der Entwicklung. Bitte wählen Sie eine andere Stadt oder wählen Sie vorerst Saarbrücken.", cityName),
		}[s.Language]
	}

	return map[string]string{
		"en": "Sorry, I only have information for Saarbrücken at the moment. Please type 'Saarbrücken' or choose from the supported list when available.",
		"fr": "Désolé, je n'ai des informations que pour Sarrebruck pour le moment. Veuillez taper 'Sarrebruck' ou choisir parmi la liste prise en charge lorsqu'elle sera disponible.",
		"de": "Entschuldigung, ich habe im Moment nur Informationen für Saarbrücken. Bitte geben Sie 'Saarbrücken' ein oder wählen Sie aus der unterstützten Liste, sobald verfügbar.",
	}[s.Language]
}

func (h *Handler) handleQuery(s *session, rawBody string) string {
	queryURL := h.assistantURL + "?prompt=" + url.QueryEscape(rawBody)
	return map[string]string{
		"en": fmt.Sprintf("I'm preparing to forward your request about Saarbrücken to the AI assistant. The URL for your query would be: %s", queryURL),
		"fr": fmt.Sprintf("Je prépare la transmission de votre demande concernant Sarrebruck à l'assistant IA. L'URL de votre requête serait : %s", queryURL),
		"de": fmt.Sprintf("Ich bereite die Weiterleitung Ihrer Anfrage zu Saarbrücken an den KI-Assistenten vor. Die URL für Ihre Anfrage wäre: %s", queryURL),
	}[s.Language]
}

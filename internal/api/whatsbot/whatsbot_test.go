package whatsbot

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler("https://quattropole.saartech.io/ai", 30*time.Minute, logger)
}

func sendMessage(t *testing.T, h *Handler, from, body string) string {
	t.Helper()
	form := url.Values{}
	form.Set("From", from)
	form.Set("Body", body)
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.HandleWebhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	return rec.Body.String()
}

func TestWebhookFlow(t *testing.T) {
	h := newTestHandler()
	from := "whatsapp:+4915700000001"

	t.Run("first contact shows language menu", func(t *testing.T) {
		reply := sendMessage(t, h, from, "hi")
		assert.Contains(t, reply, "Please choose your language")
		assert.Contains(t, reply, "<Response>")
		assert.Contains(t, reply, "<Message>")
	})

	t.Run("language selection asks for city", func(t *testing.T) {
		reply := sendMessage(t, h, from, "1")
		assert.Contains(t, reply, "You have selected English.")
		assert.Contains(t, reply, "Which city are you interested in?")
	})

	t.Run("supported city unlocks queries", func(t *testing.T) {
		reply := sendMessage(t, h, from, "Saarbrücken")
		assert.Contains(t, reply, "What would you like to know?")
	})

	t.Run("query returns assistant URL", func(t *testing.T) {
		reply := sendMessage(t, h, from, "vegan lunch spots")
		assert.Contains(t, reply, "https://quattropole.saartech.io/ai?prompt=vegan+lunch+spots")
	})
}

func TestWebhookCityHandling(t *testing.T) {
	t.Run("city in development keeps asking", func(t *testing.T) {
		h := newTestHandler()
		from := "whatsapp:+4915700000002"
		sendMessage(t, h, from, "hello")
		sendMessage(t, h, from, "english")

		reply := sendMessage(t, h, from, "Metz")
		assert.Contains(t, reply, "Support for Metz is still in development.")

		// Still in the city stage, so a valid city is accepted next.
		reply = sendMessage(t, h, from, "saarbrücken")
		assert.Contains(t, reply, "What would you like to know?")
	})

	t.Run("unknown city gets hint", func(t *testing.T) {
		h := newTestHandler()
		from := "whatsapp:+4915700000003"
		sendMessage(t, h, from, "hello")
		sendMessage(t, h, from, "3")

		reply := sendMessage(t, h, from, "Paris")
		assert.Contains(t, reply, "nur Informationen für Saarbrücken")
	})
}

func TestWebhookLanguageVariants(t *testing.T) {
	h := newTestHandler()

	reply := sendMessage(t, h, "whatsapp:+4915700000004", "x")
	assert.Contains(t, reply, "Please choose your language")

	reply = sendMessage(t, h, "whatsapp:+4915700000004", "Français")
	assert.Contains(t, reply, "Vous avez sélectionné le Français.")
	assert.Contains(t, reply, "Quelle ville vous intéresse ?")
}

func TestWebhookSessionsAreIndependent(t *testing.T) {
	h := newTestHandler()

	sendMessage(t, h, "whatsapp:+491", "start")
	sendMessage(t, h, "whatsapp:+491", "1")

	// A second sender starts from scratch.
	reply := sendMessage(t, h, "whatsapp:+492", "1")
	assert.Contains(t, reply, "You have selected English.")

	reply = sendMessage(t, h, "whatsapp:+491", "saarbrücken")
	assert.Contains(t, reply, "What would you like to know?")
}

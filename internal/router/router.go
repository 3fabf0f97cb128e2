package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/saartech/quattropole-assistant/internal/api/chat"
	"github.com/saartech/quattropole-assistant/internal/api/places"
	"github.com/saartech/quattropole-assistant/internal/api/whatsbot"
)

// Config contains the handlers the router wires up.
type Config struct {
	PlaceHandler    *places.Handler
	ChatHandler     *chat.Handler
	WhatsBotHandler *whatsbot.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are applied before
// mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "https://quattropole.saartech.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	// Live conversation socket. Kept off /api/v1 so the path matches what
	// browser clients connect to directly.
	r.Get("/ws", cfg.ChatHandler.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", cfg.ChatHandler.CreateConversation)
			r.Get("/{conversationID}", cfg.ChatHandler.GetConversation)
		})

		r.Route("/places", func(r chi.Router) {
			r.Get("/", cfg.PlaceHandler.GetAllPlaces)
			r.Get("/shops", cfg.PlaceHandler.GetShops)
			r.Get("/gastronomy", cfg.PlaceHandler.GetGastronomy)
			r.Get("/sightseeing", cfg.PlaceHandler.GetSightseeing)
			r.Get("/parking", cfg.PlaceHandler.GetParking)
			r.Get("/parking/closest", cfg.PlaceHandler.GetClosestParking)
		})

		r.Post("/whatsapp", cfg.WhatsBotHandler.HandleWebhook)
	})

	return r
}

package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/party-client/pkg/types"
)

func SetupRoutes(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Route("/party", func(r chi.Router) {
		r.Post("/create", createSession(s))
		r.Post("/join", joinByCode(s))

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/join", joinByID(s))
			r.Get("/status", status(s))
			r.Post("/ready", markReady(s))
			r.Post("/leave", leave(s))
			r.Post("/start", startSession(s))
			r.Post("/add-ai", addAI(s))
			r.Post("/ping", ping(s))
			r.Post("/rounds/prompt", startRound(s, types.RoundPrompt))
			r.Post("/rounds/copy", startRound(s, types.RoundCopy))
			r.Post("/rounds/vote", startRound(s, types.RoundVote))
			r.Post("/rounds/{roundID}/submit", submitRound(s))
			r.Get("/results", results(s))
			r.Get("/ws", wsHandler(s))
		})
	})
	return r
}

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lingo-dm/auth"
)

// NewHTTPRouter wires the realtime socket and the history endpoint.
// The socket route runs its own handshake (it needs to refuse before
// upgrading); plain HTTP routes go through the bearer middleware.
func NewHTTPRouter(gateway *Gateway, history *HistoryHandler, tokens *auth.TokenManager) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", gateway.HandleSocket)

	r.Route("/api/chat", func(api chi.Router) {
		api.Use(auth.Middleware(tokens))
		api.Get("/{peerID}/messages", history.GetMessages)
	})

	return r
}

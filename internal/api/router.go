package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the API surface plus the static presentation layer.
func NewRouter(h *Handler, staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/conversations", h.GetConversations)
	r.Post("/conversations", h.CreateConversation)
	r.Delete("/conversations", h.DeleteConversation)
	r.Post("/turn", h.HandleTurn)
	r.Get("/search", h.SearchMessages)

	r.Handle("/*", http.FileServer(http.Dir(staticDir)))

	return r
}

package handlers

import "net/http"

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Combine *CombineHandler
	Paths   *PathHandler
	Puzzles *PuzzleHandler
	Session *SessionHandler
	Catalog *CatalogHandler
	Health  *HealthHandler
}

// NewRouter registers all routes and wraps them in the shared middleware.
func NewRouter(h Handlers, m *Middleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health.Healthz)

	// Engine
	mux.HandleFunc("POST /combine", m.OptionalAuth(m.RateLimit(h.Combine.Combine)))
	mux.HandleFunc("POST /paths/generate", m.RequireAuth(m.RateLimit(h.Paths.Generate)))
	mux.HandleFunc("PUT /paths", m.RequireAdmin(h.Paths.Save))

	// Puzzles
	mux.HandleFunc("GET /puzzles", m.OptionalAuth(h.Puzzles.Get))
	mux.HandleFunc("GET /puzzles/range", m.OptionalAuth(h.Puzzles.Range))
	mux.HandleFunc("POST /puzzles", m.RequireAdmin(h.Puzzles.Create))
	mux.HandleFunc("PATCH /puzzles/{id}", m.RequireAdmin(h.Puzzles.Update))

	// Sessions
	mux.HandleFunc("POST /sessions/{date}/start", m.RequireAuth(h.Session.Start))
	mux.HandleFunc("POST /sessions/{date}/combine", m.RequireAuth(m.RateLimit(h.Session.Combine)))
	mux.HandleFunc("POST /sessions/{date}/hint", m.RequireAuth(h.Session.Hint))
	mux.HandleFunc("POST /sessions/{date}/tick", m.RequireAuth(h.Session.Tick))
	mux.HandleFunc("POST /sessions/{date}/finalize", m.RequireAuth(h.Session.Finalize))

	// Admin
	mux.HandleFunc("DELETE /combinations/{key}", m.RequireAdmin(h.Catalog.Delete))
	mux.HandleFunc("GET /admin/catalog/export", m.RequireAdmin(h.Catalog.Export))
	mux.HandleFunc("GET /admin/audit", m.RequireAdmin(h.Catalog.Audit))

	return m.Recover(m.Logging(mux))
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/razaq-yassine/errorscope/internal/api/middleware"
	"github.com/razaq-yassine/errorscope/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler      http.HandlerFunc
	SubmitHandler      http.HandlerFunc
	DetailHandler      http.HandlerFunc
	ListHandler        http.HandlerFunc
	BreakdownHandler   http.HandlerFunc
	TrendsHandler      http.Handler
	AcknowledgeHandler http.HandlerFunc
	ResolveHandler     http.HandlerFunc
	CreateKeyHandler   http.HandlerFunc
	ListKeysHandler    http.HandlerFunc
	RevokeKeyHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Event submission: open to any client session, IP rate-limited.
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)
		r.Post("/api/v1/errors/log", orNotImplemented(deps.SubmitHandler))
	})

	// Operator dashboard
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.Auth.RequireScope("admin"))

		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Route("/error-dashboard", func(r chi.Router) {
				r.Get("/errors", orNotImplemented(deps.ListHandler))
				r.Get("/breakdown", orNotImplemented(deps.BreakdownHandler))
				if deps.TrendsHandler != nil {
					r.Method(http.MethodGet, "/trends", deps.TrendsHandler)
				} else {
					r.Get("/trends", orNotImplemented(nil))
				}
				r.Get("/detail/{errorID}", orNotImplemented(deps.DetailHandler))
				r.Post("/detail/{errorID}/acknowledge", orNotImplemented(deps.AcknowledgeHandler))
				r.Post("/detail/{errorID}/resolve", orNotImplemented(deps.ResolveHandler))
			})

			r.Post("/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

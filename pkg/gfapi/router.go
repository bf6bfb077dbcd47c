// Package gfapi implements the HTTP surface described in spec.md §6: the
// "/auth/api/v1/..." token-management routes and the "/auth/openid/..." +
// "/.well-known/..." OIDC provider routes. Route registration follows the
// teacher's pkg/api/v1 shape (chi.NewRouter, apierrors.ErrorHandler-wrapped
// HandlerWithError methods, chi.URLParam path params) even though the
// teacher's own pkg/api/v1 package serves an unrelated CLI-facing registry
// API rather than an HTTP router — see DESIGN.md for why that package was
// not reused directly.
package gfapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gafaelfawr/gafaelfawr/pkg/authgate"
	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
	"github.com/gafaelfawr/gafaelfawr/pkg/oidcprovider"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

// Server holds the dependencies every route handler needs.
type Server struct {
	svc  *tokenservice.Service
	oidc *oidcprovider.Provider
	gate *authgate.Gate
	cfg  *gfconfig.Config
}

// NewServer builds a Server over the given dependencies.
func NewServer(svc *tokenservice.Service, oidc *oidcprovider.Provider, gate *authgate.Gate, cfg *gfconfig.Config) *Server {
	return &Server{svc: svc, oidc: oidc, gate: gate, cfg: cfg}
}

// NewRouter builds the full chi.Mux for spec.md §6's HTTP API.
func NewRouter(s *Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/auth/api/v1", func(r chi.Router) {
		r.Use(s.gate.Middleware(s.gateOptions()))

		r.Get("/token-info", apiHandler(s.tokenInfo))
		r.Get("/user-info", apiHandler(s.userInfo))

		r.Get("/users/{username}/tokens", apiHandler(s.listUserTokens))
		r.Post("/users/{username}/tokens", apiHandler(s.createUserToken))
		r.Get("/users/{username}/tokens/{key}", apiHandler(s.getUserToken))
		r.Patch("/users/{username}/tokens/{key}", apiHandler(s.modifyUserToken))
		r.Delete("/users/{username}/tokens/{key}", apiHandler(s.deleteUserToken))
		r.Get("/users/{username}/token-change-history", apiHandler(s.userChangeHistory))
		r.Get("/users/{username}/tokens/{key}/change-history", apiHandler(s.tokenChangeHistory))

		r.Post("/tokens", apiHandler(s.adminCreateToken))

		r.Get("/admins", apiHandler(s.listAdmins))
		r.Post("/admins", apiHandler(s.addAdmin))
		r.Delete("/admins/{username}", apiHandler(s.removeAdmin))

		r.Get("/history/token-changes", apiHandler(s.globalChangeHistory))
	})

	r.Route("/auth/openid", func(r chi.Router) {
		r.With(s.gate.Middleware(s.oidcLoginOptions())).Get("/login", s.openIDLogin)
		r.Post("/token", s.openIDToken)
		r.Get("/userinfo", s.openIDUserinfo)
	})

	r.Get("/.well-known/jwks.json", s.jwks)
	r.Get("/.well-known/openid-configuration", s.discovery)

	return r
}

func (s *Server) gateOptions() authgate.Options {
	return authgate.Options{
		CookieName:          s.cfg.CookieName,
		AllowBootstrapToken: true,
		BootstrapToken:      s.cfg.BootstrapToken,
	}
}

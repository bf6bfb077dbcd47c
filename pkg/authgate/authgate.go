// Package authgate implements the bearer/cookie authorization gate (spec.md
// §4.7) as net/http middleware, in the shape of the teacher's
// pkg/auth/middleware.TokenMiddleware: a context key carrying the verified
// principal, a constructor taking the dependencies the check needs, and a
// func(http.Handler) http.Handler the router wraps routes with.
package authgate

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/gafaelfawr/gafaelfawr/pkg/store/kv"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

type contextKey struct{}

// tokenDataContextKey is the private key under which a verified
// token.Data is stored in the request context.
var tokenDataContextKey = contextKey{}

// FromContext returns the token.Data a Gate middleware attached to ctx, or
// false if none was attached (the route isn't gated, or a test built its own
// context).
func FromContext(ctx context.Context) (token.Data, bool) {
	v, ok := ctx.Value(tokenDataContextKey).(token.Data)
	return v, ok
}

func withTokenData(r *http.Request, data token.Data) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), tokenDataContextKey, data))
}

// bootstrapActor is the synthetic username attached to requests
// authenticated via the out-of-band bootstrap token.
const bootstrapActor = "<bootstrap>"

// Options configures a single gated route or route group. Zero value is the
// plain "must present a valid bearer token" gate; a session cookie is
// accepted only when CookieName is set.
type Options struct {
	// CookieName, if non-empty, also accepts a session credential from this
	// cookie when no Authorization header is present.
	CookieName string
	// RedirectIfUnauthenticated sends a 307 to "/login?rd=<current>" instead
	// of a 401 on missing/invalid credentials.
	RedirectIfUnauthenticated bool
	// RequireScope, if non-empty, is required to be present on the verified
	// token's scopes, else the request is rejected with 403.
	RequireScope string
	// AllowBootstrapToken, if true, accepts the configured bootstrap secret
	// as a stand-in for an admin:token-scoped TokenData.
	AllowBootstrapToken bool
	// BootstrapToken is the out-of-band bootstrap secret, compared in
	// constant time. Required when AllowBootstrapToken is true.
	BootstrapToken string
	// RequireSession rejects bearer-only presentations; only cookie-backed
	// sessions pass.
	RequireSession bool
}

// Gate builds middleware enforcing opts against requests, looking up
// presented tokens in kvStore.
type Gate struct {
	kv *kv.Store
}

// New builds a Gate backed by kvStore.
func New(kvStore *kv.Store) *Gate {
	return &Gate{kv: kvStore}
}

// Middleware returns the func(http.Handler) http.Handler enforcing opts.
func (g *Gate) Middleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, fromCookie, ok := g.authenticate(r, opts)
			if !ok {
				g.reject(w, r, opts)
				return
			}
			if opts.RequireSession && !fromCookie {
				http.Error(w, "session required", http.StatusUnauthorized)
				return
			}
			if opts.RequireScope != "" && !hasScope(data.Scopes, opts.RequireScope) {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, withTokenData(r, data))
		})
	}
}

// authenticate extracts a credential from the request and resolves it to
// token.Data. The second return value reports whether the credential came
// from a cookie (a "session") rather than an Authorization header.
func (g *Gate) authenticate(r *http.Request, opts Options) (token.Data, bool, bool) {
	if opts.AllowBootstrapToken && opts.BootstrapToken != "" {
		if raw := bearerCredential(r); raw != "" && constantTimeEqual(raw, opts.BootstrapToken) {
			return bootstrapTokenData(), false, true
		}
	}

	if raw := bearerCredential(r); raw != "" {
		data, ok := g.verify(r, raw)
		if ok {
			return data, false, true
		}
		return token.Data{}, false, false
	}

	if opts.CookieName != "" {
		if c, err := r.Cookie(opts.CookieName); err == nil && c.Value != "" {
			data, ok := g.verify(r, c.Value)
			return data, true, ok
		}
	}

	return token.Data{}, false, false
}

func (g *Gate) verify(r *http.Request, raw string) (token.Data, bool) {
	tok, err := token.ParseToken(raw)
	if err != nil {
		return token.Data{}, false
	}
	data, err := g.kv.GetData(r.Context(), tok)
	if err != nil {
		return token.Data{}, false
	}
	return *data, true
}

func bearerCredential(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.RedirectIfUnauthenticated {
		rd := url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, "/login?rd="+rd, http.StatusTemporaryRedirect)
		return
	}
	http.Error(w, "authentication required", http.StatusUnauthorized)
}

func hasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// bootstrapTokenData builds the synthetic admin TokenData the bootstrap
// token grants.
func bootstrapTokenData() token.Data {
	return token.Data{
		Username: bootstrapActor,
		Type:     token.TypeService,
		Scopes:   []string{"admin:token"},
	}
}

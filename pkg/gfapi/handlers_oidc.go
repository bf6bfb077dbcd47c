package gfapi

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gafaelfawr/gafaelfawr/pkg/authgate"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// oidcLoginOptions gates /auth/openid/login behind a valid session, per
// spec.md §4.6: "Requires a valid session token (authorization gate, with
// redirect-if-unauthenticated)."
func (s *Server) oidcLoginOptions() authgate.Options {
	return authgate.Options{
		CookieName:                s.cfg.CookieName,
		RedirectIfUnauthenticated: true,
	}
}

// openIDLogin implements GET /auth/openid/login. An unknown client_id is
// reported as a 400 JSON page; every other validation failure is reported
// by redirecting to the client's own redirect_uri with error/error_description,
// since by that point the client is known and trusted to receive it. The
// router wraps this handler in the gate middleware (oidcLoginOptions) so a
// verified session is already attached to the request context.
func (s *Server) openIDLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")

	client, ok := s.oidc.LookupClient(clientID)
	if !ok {
		writeOAuthPageError(w, http.StatusBadRequest, "invalid_request", "unknown client_id")
		return
	}

	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")

	if q.Get("response_type") != "code" {
		redirectOAuthError(w, r, redirectURI, state, "invalid_request", "response_type must be code")
		return
	}
	if q.Get("scope") != "openid" {
		redirectOAuthError(w, r, redirectURI, state, "invalid_request", "scope must be openid")
		return
	}

	data, ok := authgate.FromContext(r.Context())
	if !ok {
		redirectOAuthError(w, r, redirectURI, state, "invalid_request", "no authenticated session")
		return
	}

	code, err := s.oidc.IssueCode(r.Context(), client.ID, redirectURI, data.Token.Key)
	if err != nil {
		redirectOAuthError(w, r, redirectURI, state, "server_error", "could not issue authorization code")
		return
	}

	dest, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthPageError(w, http.StatusBadRequest, "invalid_request", "malformed redirect_uri")
		return
	}
	values := dest.Query()
	values.Set("code", code.String())
	if state != "" {
		values.Set("state", state)
	}
	dest.RawQuery = values.Encode()

	http.Redirect(w, r, dest.String(), http.StatusTemporaryRedirect)
}

// openIDToken implements POST /auth/openid/token.
func (s *Server) openIDToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		writeOAuthJSONError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	grantType := r.PostFormValue("grant_type")
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	codeStr := r.PostFormValue("code")
	redirectURI := r.PostFormValue("redirect_uri")

	for name, value := range map[string]string{
		"client_id":    clientID,
		"code":         codeStr,
		"redirect_uri": redirectURI,
	} {
		if value == "" {
			writeOAuthJSONError(w, http.StatusBadRequest, "invalid_request", name+" is required")
			return
		}
	}
	if grantType != "authorization_code" {
		writeOAuthJSONError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	client, ok := s.oidc.LookupClient(clientID)
	if !ok || clientSecret == "" || client.Secret != clientSecret {
		writeOAuthJSONError(w, http.StatusBadRequest, "invalid_client", "unknown client or bad secret")
		return
	}

	code, err := token.ParseCode(codeStr)
	if err != nil {
		writeOAuthJSONError(w, http.StatusBadRequest, "invalid_grant", "malformed authorization code")
		return
	}

	sessionKey, err := s.oidc.RedeemCode(r.Context(), code, clientID, redirectURI)
	if err != nil {
		writeOAuthJSONError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	data, err := s.svc.SessionData(r.Context(), sessionKey)
	if err != nil {
		writeOAuthJSONError(w, http.StatusBadRequest, "invalid_grant", "session token is gone")
		return
	}

	idToken, ttl, err := s.oidc.IssueIDToken(clientID, *data)
	if err != nil {
		writeOAuthJSONError(w, http.StatusInternalServerError, "server_error", "could not issue id token")
		return
	}

	writeJSON(w, http.StatusOK, struct { //nolint:errcheck
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}{
		AccessToken: idToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

// openIDUserinfo implements GET /auth/openid/userinfo.
func (s *Server) openIDUserinfo(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	claims, err := s.oidc.VerifyToken(raw)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, claims) //nolint:errcheck
}

// jwks implements GET /.well-known/jwks.json.
func (s *Server) jwks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oidc.JWKS()) //nolint:errcheck
}

// discovery implements GET /.well-known/openid-configuration.
func (s *Server) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.oidc.Discovery(s.cfg.Issuer)) //nolint:errcheck
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

func writeOAuthJSONError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}{Error: errCode, ErrorDescription: description})
}

func writeOAuthPageError(w http.ResponseWriter, status int, errCode, description string) {
	writeOAuthJSONError(w, status, errCode, description)
}

func redirectOAuthError(w http.ResponseWriter, r *http.Request, redirectURI, state, errCode, description string) {
	dest, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		writeOAuthPageError(w, http.StatusBadRequest, errCode, description)
		return
	}
	values := dest.Query()
	values.Set("error", errCode)
	values.Set("error_description", description)
	if state != "" {
		values.Set("state", state)
	}
	dest.RawQuery = values.Encode()
	http.Redirect(w, r, dest.String(), http.StatusTemporaryRedirect)
}

package gfapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gafaelfawr/gafaelfawr/pkg/api/apierrors"
	"github.com/gafaelfawr/gafaelfawr/pkg/authgate"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

// apiHandler adapts a HandlerWithError into an http.HandlerFunc using the
// uniform JSON error body.
func apiHandler(fn apierrors.HandlerWithError) http.HandlerFunc {
	return apierrors.ErrorHandler(fn)
}

// callerAuth reads the authenticated principal the authgate middleware
// attached to the request and converts it to tokenservice's AuthInfo.
func callerAuth(r *http.Request) (tokenservice.AuthInfo, error) {
	data, ok := authgate.FromContext(r.Context())
	if !ok {
		return tokenservice.AuthInfo{}, fmt.Errorf("gfapi: no authenticated principal on request context")
	}
	return tokenservice.AuthInfo{Username: data.Username, Scopes: data.Scopes}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("gfapi: encoding response: %w", err)
	}
	return nil
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// Package apierrors adapts the teacher's HandlerWithError/ErrorHandler
// decorator (pkg/api/errors/handler.go) to the token subsystem's domain
// error taxonomy and its uniform JSON error body:
// {"detail": [{"type", "msg", "loc"}]}. 5xx errors are logged in full and
// answered with a generic message; 4xx errors return the domain error's own
// message. Token secrets never appear in these bodies or logs; only token
// keys and the typed error kind do.
package apierrors

import (
	"encoding/json"
	"net/http"

	apierr "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/gflog"
)

// HandlerWithError is an HTTP handler that can return an error, so the
// error-shaping logic lives in one place instead of every handler writing
// its own response on failure.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// Detail is one element of the uniform error body's "detail" array.
type Detail struct {
	Type string   `json:"type"`
	Msg  string   `json:"msg"`
	Loc  []string `json:"loc,omitempty"`
}

// body is the uniform JSON error response shape.
type body struct {
	Detail []Detail `json:"detail"`
}

// ErrorHandler wraps fn and converts any error it returns into the uniform
// JSON body, at the status errors.Code(err) resolves to.
//
// Usage:
//
//	r.Get("/tokens/{key}", apierrors.ErrorHandler(handlers.GetTokenInfo))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		status := apierr.Code(err)
		kind := "internal_error"
		msg := err.Error()
		var domainErr *apierr.Error
		if as, ok := err.(*apierr.Error); ok {
			domainErr = as
		}
		if domainErr != nil {
			kind = string(domainErr.Type)
			msg = domainErr.Message
		}

		if status >= http.StatusInternalServerError {
			gflog.Errorw("internal server error", "event", "handler_error", "error", err.Error())
			writeJSON(w, status, body{Detail: []Detail{{Type: "internal_error", Msg: http.StatusText(status)}}})
			return
		}

		gflog.Warnw("request failed", "event", "handler_error", "kind", kind, "status", status)
		writeJSON(w, status, body{Detail: []Detail{{Type: kind, Msg: msg}}})
	}
}

// WriteError writes err directly as the uniform JSON body, for call sites
// that already have a ResponseWriter but aren't using the ErrorHandler
// decorator (e.g. the OIDC handlers, whose error policy differs per
// endpoint).
func WriteError(w http.ResponseWriter, err error) {
	status := apierr.Code(err)
	kind := "internal_error"
	msg := http.StatusText(status)
	if domainErr, ok := err.(*apierr.Error); ok {
		kind = string(domainErr.Type)
		if status < http.StatusInternalServerError {
			msg = domainErr.Message
		}
	}
	if status >= http.StatusInternalServerError {
		gflog.Errorw("internal server error", "event", "handler_error", "error", err.Error())
	}
	writeJSON(w, status, body{Detail: []Detail{{Type: kind, Msg: msg}}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package errors defines the domain error taxonomy used across Gafaelfawr.
//
// Every recoverable failure the token subsystem can produce is wrapped in an
// *Error carrying a Type and the HTTP status that boundary handlers should
// return for it. Non-recoverable failures (Kubernetes I/O, store corruption)
// use the same type so callers can log and branch uniformly.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type identifies the kind of domain error.
type Type string

// Error kinds, matching the token subsystem's error-kind table.
const (
	ErrPermissionDenied     Type = "permission_denied"
	ErrNotFound             Type = "not_found"
	ErrInvalidExpires       Type = "invalid_expires"
	ErrInvalidScopes        Type = "invalid_scopes"
	ErrInvalidIPAddress     Type = "invalid_ip_address"
	ErrDuplicateTokenName   Type = "duplicate_token_name"
	ErrInvalidRequest       Type = "invalid_request"
	ErrUnsupportedGrantType Type = "unsupported_grant_type"
	ErrInvalidClient        Type = "invalid_client"
	ErrInvalidGrant         Type = "invalid_grant"
	ErrKubernetes           Type = "kubernetes_error"
	ErrStoreInconsistency   Type = "store_inconsistency"
	ErrInternal             Type = "internal_error"
)

// statusByType maps each error kind to the HTTP status a boundary handler
// should return for it.
var statusByType = map[Type]int{
	ErrPermissionDenied:     http.StatusForbidden,
	ErrNotFound:             http.StatusNotFound,
	ErrInvalidExpires:       http.StatusUnprocessableEntity,
	ErrInvalidScopes:        http.StatusUnprocessableEntity,
	ErrInvalidIPAddress:     http.StatusUnprocessableEntity,
	ErrDuplicateTokenName:   http.StatusConflict,
	ErrInvalidRequest:       http.StatusBadRequest,
	ErrUnsupportedGrantType: http.StatusBadRequest,
	ErrInvalidClient:        http.StatusBadRequest,
	ErrInvalidGrant:         http.StatusBadRequest,
	ErrKubernetes:           http.StatusInternalServerError,
	ErrStoreInconsistency:   http.StatusInternalServerError,
	ErrInternal:             http.StatusInternalServerError,
}

// Error is the concrete domain error type. It carries enough context for
// both the HTTP boundary (Type -> status) and structured logging (Message,
// Cause) without leaking store-specific error types into callers.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

// NewError constructs an *Error of the given type.
func NewError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the HTTP status code that should be returned for err. Errors
// that are not *Error map to 500, matching the teacher's "unknown error is
// an internal error" default.
func Code(err error) int {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		if status, ok := statusByType[domainErr.Type]; ok {
			return status
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func isType(err error, t Type) bool {
	if err == nil {
		return false
	}
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Type == t
}

// NewPermissionDeniedError reports that the caller lacks the scope or
// ownership required for the action.
func NewPermissionDeniedError(message string, cause error) *Error {
	return NewError(ErrPermissionDenied, message, cause)
}

// IsPermissionDenied reports whether err is a permission-denied error.
func IsPermissionDenied(err error) bool { return isType(err, ErrPermissionDenied) }

// NewNotFoundError reports that a token or admin entry does not exist.
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return isType(err, ErrNotFound) }

// NewInvalidExpiresError reports an expires value that violates the
// minimum-lifetime or narrowing invariant.
func NewInvalidExpiresError(message string, cause error) *Error {
	return NewError(ErrInvalidExpires, message, cause)
}

// IsInvalidExpires reports whether err is an invalid-expires error.
func IsInvalidExpires(err error) bool { return isType(err, ErrInvalidExpires) }

// NewInvalidScopesError reports scopes outside the known set or outside the
// caller's own scopes.
func NewInvalidScopesError(message string, cause error) *Error {
	return NewError(ErrInvalidScopes, message, cause)
}

// IsInvalidScopes reports whether err is an invalid-scopes error.
func IsInvalidScopes(err error) bool { return isType(err, ErrInvalidScopes) }

// NewInvalidIPAddressError reports a malformed IP-or-CIDR filter value.
func NewInvalidIPAddressError(message string, cause error) *Error {
	return NewError(ErrInvalidIPAddress, message, cause)
}

// IsInvalidIPAddress reports whether err is an invalid-IP-address error.
func IsInvalidIPAddress(err error) bool { return isType(err, ErrInvalidIPAddress) }

// NewDuplicateTokenNameError reports a token_name unique-constraint
// violation for (owner, type=user).
func NewDuplicateTokenNameError(message string, cause error) *Error {
	return NewError(ErrDuplicateTokenName, message, cause)
}

// IsDuplicateTokenName reports whether err is a duplicate-token-name error.
func IsDuplicateTokenName(err error) bool { return isType(err, ErrDuplicateTokenName) }

// NewInvalidRequestError reports a malformed OIDC request (missing form
// field, bad response_type, etc.).
func NewInvalidRequestError(message string, cause error) *Error {
	return NewError(ErrInvalidRequest, message, cause)
}

// IsInvalidRequest reports whether err is an invalid-request error.
func IsInvalidRequest(err error) bool { return isType(err, ErrInvalidRequest) }

// NewUnsupportedGrantTypeError reports a grant_type other than
// authorization_code at the /token endpoint.
func NewUnsupportedGrantTypeError(message string, cause error) *Error {
	return NewError(ErrUnsupportedGrantType, message, cause)
}

// IsUnsupportedGrantType reports whether err is an unsupported-grant-type error.
func IsUnsupportedGrantType(err error) bool { return isType(err, ErrUnsupportedGrantType) }

// NewInvalidClientError reports an unknown client_id, missing, or wrong
// client_secret.
func NewInvalidClientError(message string, cause error) *Error {
	return NewError(ErrInvalidClient, message, cause)
}

// IsInvalidClient reports whether err is an invalid-client error.
func IsInvalidClient(err error) bool { return isType(err, ErrInvalidClient) }

// NewInvalidGrantError reports an unknown, expired, or mismatched
// authorization code.
func NewInvalidGrantError(message string, cause error) *Error {
	return NewError(ErrInvalidGrant, message, cause)
}

// IsInvalidGrant reports whether err is an invalid-grant error.
func IsInvalidGrant(err error) bool { return isType(err, ErrInvalidGrant) }

// NewKubernetesError reports a failure materializing a service-token
// Secret. Not recoverable: callers should log and exit/alert.
func NewKubernetesError(message string, cause error) *Error {
	return NewError(ErrKubernetes, message, cause)
}

// IsKubernetes reports whether err is a Kubernetes-error.
func IsKubernetes(err error) bool { return isType(err, ErrKubernetes) }

// NewStoreInconsistencyError reports an audit finding. Operator-visible,
// not surfaced to API clients.
func NewStoreInconsistencyError(message string, cause error) *Error {
	return NewError(ErrStoreInconsistency, message, cause)
}

// IsStoreInconsistency reports whether err is a store-inconsistency error.
func IsStoreInconsistency(err error) bool { return isType(err, ErrStoreInconsistency) }

// NewInternalError wraps an unexpected failure with no more specific kind.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsInternal reports whether err is an internal error.
func IsInternal(err error) bool { return isType(err, ErrInternal) }

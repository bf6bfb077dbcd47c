package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err:  &Error{Type: ErrInvalidScopes, Message: "test message", Cause: errors.New("underlying error")},
			want: "invalid_scopes: test message: underlying error",
		},
		{
			name: "error without cause",
			err:  &Error{Type: ErrInternal, Message: "test message"},
			want: "internal_error: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Type: ErrInternal, Message: "test message", Cause: cause}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{Type: ErrInternal, Message: "test message"}
	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"permission denied", NewPermissionDeniedError("no", nil), http.StatusForbidden},
		{"not found", NewNotFoundError("no", nil), http.StatusNotFound},
		{"invalid expires", NewInvalidExpiresError("no", nil), http.StatusUnprocessableEntity},
		{"invalid scopes", NewInvalidScopesError("no", nil), http.StatusUnprocessableEntity},
		{"invalid ip", NewInvalidIPAddressError("no", nil), http.StatusUnprocessableEntity},
		{"duplicate name", NewDuplicateTokenNameError("no", nil), http.StatusConflict},
		{"invalid request", NewInvalidRequestError("no", nil), http.StatusBadRequest},
		{"unsupported grant", NewUnsupportedGrantTypeError("no", nil), http.StatusBadRequest},
		{"invalid client", NewInvalidClientError("no", nil), http.StatusBadRequest},
		{"invalid grant", NewInvalidGrantError("no", nil), http.StatusBadRequest},
		{"kubernetes", NewKubernetesError("no", nil), http.StatusInternalServerError},
		{"store inconsistency", NewStoreInconsistencyError("no", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"IsPermissionDenied match", NewPermissionDeniedError("x", nil), IsPermissionDenied, true},
		{"IsPermissionDenied mismatch", NewNotFoundError("x", nil), IsPermissionDenied, false},
		{"IsPermissionDenied non-Error", errors.New("plain"), IsPermissionDenied, false},
		{"IsNotFound match", NewNotFoundError("x", nil), IsNotFound, true},
		{"IsDuplicateTokenName match", NewDuplicateTokenNameError("x", nil), IsDuplicateTokenName, true},
		{"IsInvalidGrant match", NewInvalidGrantError("x", nil), IsInvalidGrant, true},
		{"IsInternal nil", nil, IsInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker(tt.err); got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

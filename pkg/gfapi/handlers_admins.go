package gfapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierr "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

type adminCreateTokenRequest struct {
	Username  string             `json:"username"`
	TokenType string             `json:"token_type"`
	TokenName *string            `json:"token_name,omitempty"`
	Scopes    []string           `json:"scopes"`
	Expires   *time.Time         `json:"expires,omitempty"`
	User      token.UserMetadata `json:"user"`
}

// adminCreateToken implements POST /auth/api/v1/tokens: administrative
// minting of a user or service token on behalf of another owner.
func (s *Server) adminCreateToken(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}

	var req adminCreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apierr.NewInvalidRequestError("malformed request body", err)
	}

	var tokType token.Type
	switch req.TokenType {
	case "user":
		tokType = token.TypeUser
	case "service":
		tokType = token.TypeService
	default:
		return apierr.NewInvalidRequestError("token_type must be user or service", nil)
	}

	tok, err := s.svc.CreateFromAdminRequest(r.Context(), tokenservice.AdminCreateRequest{
		Owner:   req.Username,
		Type:    tokType,
		Name:    req.TokenName,
		Scopes:  req.Scopes,
		Expires: req.Expires,
		User:    req.User,
	}, auth, clientIP(r))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, struct {
		Token string `json:"token"`
		Key   string `json:"key"`
	}{Token: tok.String(), Key: tok.Key})
}

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	admins, err := s.svc.ListAdmins(r.Context(), auth)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, admins)
}

type addAdminRequest struct {
	Username string `json:"username"`
}

func (s *Server) addAdmin(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	var req addAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apierr.NewInvalidRequestError("malformed request body", err)
	}
	if err := s.svc.AddAdmin(r.Context(), auth, req.Username); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) removeAdmin(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")
	if err := s.svc.RemoveAdmin(r.Context(), auth, username); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

package gfapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gafaelfawr/gafaelfawr/pkg/authgate"
	apierr "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

// tokenInfo implements GET /auth/api/v1/token-info: the caller's own token
// metadata, resolved from the principal the gate attached to the request
// rather than a path parameter.
func (s *Server) tokenInfo(w http.ResponseWriter, r *http.Request) error {
	data, ok := authgate.FromContext(r.Context())
	if !ok {
		return apierr.NewPermissionDeniedError("authentication required", nil)
	}
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	info, err := s.svc.GetTokenInfo(r.Context(), auth, data.Token.Key)
	if err != nil {
		return err
	}
	if info == nil {
		return apierr.NewNotFoundError("token not found", nil)
	}
	return writeJSON(w, http.StatusOK, info)
}

// userInfo implements GET /auth/api/v1/user-info: the caller's own user
// metadata, taken from the session/token data attached by the gate.
func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) error {
	data, ok := authgate.FromContext(r.Context())
	if !ok {
		return apierr.NewPermissionDeniedError("authentication required", nil)
	}
	return writeJSON(w, http.StatusOK, struct {
		Username string             `json:"username"`
		User     token.UserMetadata `json:"user"`
	}{Username: data.Username, User: data.User})
}

func (s *Server) listUserTokens(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")
	tokens, err := s.svc.ListTokens(r.Context(), auth, &username)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, tokens)
}

type createUserTokenRequest struct {
	Name    string     `json:"token_name"`
	Scopes  []string   `json:"scopes"`
	Expires *time.Time `json:"expires,omitempty"`
}

func (s *Server) createUserToken(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")

	var req createUserTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apierr.NewInvalidRequestError("malformed request body", err)
	}

	tok, err := s.svc.CreateUserToken(r.Context(), auth, username, req.Name, req.Scopes, req.Expires, clientIP(r))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, struct {
		Token string `json:"token"`
		Key   string `json:"key"`
	}{Token: tok.String(), Key: tok.Key})
}

func (s *Server) getUserToken(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	key := chi.URLParam(r, "key")
	info, err := s.svc.GetTokenInfo(r.Context(), auth, key)
	if err != nil {
		return err
	}
	if info == nil {
		return apierr.NewNotFoundError("token not found", nil)
	}
	return writeJSON(w, http.StatusOK, info)
}

type modifyUserTokenRequest struct {
	Name     *string    `json:"token_name,omitempty"`
	Scopes   []string   `json:"scopes,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	NoExpire bool       `json:"no_expire,omitempty"`
}

// toServiceRequest translates the wire shape into tokenservice.ModifyRequest,
// treating a present-but-nil field as "leave unchanged" and a present field
// as "set it" (NoExpire overrides Expires to mean "clear it").
func (req modifyUserTokenRequest) toServiceRequest() tokenservice.ModifyRequest {
	return tokenservice.ModifyRequest{
		Name:       req.Name,
		HasName:    req.Name != nil,
		Scopes:     req.Scopes,
		HasScopes:  req.Scopes != nil,
		Expires:    req.Expires,
		HasExpires: req.Expires != nil || req.NoExpire,
		NoExpire:   req.NoExpire,
	}
}

func (s *Server) modifyUserToken(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")
	key := chi.URLParam(r, "key")

	var req modifyUserTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apierr.NewInvalidRequestError("malformed request body", err)
	}

	info, err := s.svc.Modify(r.Context(), key, auth, &username, clientIP(r), req.toServiceRequest())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteUserToken(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")
	key := chi.URLParam(r, "key")

	found, err := s.svc.Delete(r.Context(), key, auth, &username, clientIP(r))
	if err != nil {
		return err
	}
	if !found {
		return apierr.NewNotFoundError("token not found", nil)
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) userChangeHistory(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")
	return s.writeHistoryPage(w, r, auth, history.Filter{Username: &username})
}

func (s *Server) tokenChangeHistory(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	username := chi.URLParam(r, "username")
	key := chi.URLParam(r, "key")
	return s.writeHistoryPage(w, r, auth, history.Filter{Username: &username, Key: &key})
}

func (s *Server) globalChangeHistory(w http.ResponseWriter, r *http.Request) error {
	auth, err := callerAuth(r)
	if err != nil {
		return apierr.NewPermissionDeniedError("authentication required", err)
	}
	return s.writeHistoryPage(w, r, auth, history.Filter{})
}

func (s *Server) writeHistoryPage(w http.ResponseWriter, r *http.Request, auth tokenservice.AuthInfo, filter history.Filter) error {
	var after *history.Cursor
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		c, err := history.ParseCursor(cursorStr)
		if err != nil {
			return apierr.NewInvalidRequestError("malformed cursor", err)
		}
		after = &c
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return apierr.NewInvalidRequestError("malformed limit", err)
		}
		limit = n
	}

	page, err := s.svc.GetChangeHistory(r.Context(), auth, filter, after, limit)
	if err != nil {
		return err
	}

	w.Header().Set("X-Total-Count", fmt.Sprintf("%d", page.TotalCount))
	if page.Next != nil {
		w.Header().Set("Link", fmt.Sprintf(`<?cursor=%s>; rel="next"`, page.Next.String()))
	}
	return writeJSON(w, http.StatusOK, page.Entries)
}

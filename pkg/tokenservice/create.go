package tokenservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "github.com/gafaelfawr/gafaelfawr/pkg/errors"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

// writeNewToken performs the fixed cross-store write order from spec.md
// §5: KV first (so any token a create call returns is already live and
// authoritative), then the relational row, then the history entry. A
// failure after the KV write is surfaced to the caller; a later
// audit(fix=true) pass reconciles a KV-only straggler.
func (s *Service) writeNewToken(ctx context.Context, data token.Data, name, parent, service *string, actor, ip string) error {
	if err := s.kv.StoreData(ctx, data); err != nil {
		return fmt.Errorf("writing token to kv store: %w", err)
	}

	info := token.Info{
		Token:    data.Token.Key,
		Username: data.Username,
		Type:     data.Type,
		Scopes:   data.Scopes,
		Created:  data.Created,
		Expires:  data.Expires,
		Name:     name,
		Parent:   parent,
		Service:  service,
		User:     data.User,
	}
	if err := s.db.Add(ctx, info); err != nil {
		if errors.Is(err, db.ErrDuplicateName) {
			return apierrors.NewDuplicateTokenNameError("token_name already in use for this owner", err)
		}
		return fmt.Errorf("writing token relational row: %w", err)
	}

	entry := token.ChangeHistoryEntry{
		Token:     data.Token.Key,
		Username:  data.Username,
		Type:      data.Type,
		Name:      name,
		Parent:    parent,
		Scopes:    data.Scopes,
		Service:   service,
		Expires:   data.Expires,
		Actor:     actor,
		Action:    token.ActionCreate,
		IPAddress: ip,
		EventTime: data.Created,
	}
	if err := s.history.Add(ctx, entry); err != nil {
		return fmt.Errorf("appending create history entry: %w", err)
	}
	return nil
}

// CreateSessionToken mints a session token for a freshly authenticated
// user (spec.md §4.1 createSessionToken).
func (s *Service) CreateSessionToken(ctx context.Context, username string, user token.UserMetadata, scopes []string, ip string) (token.Token, error) {
	if !token.UsernamePattern.MatchString(username) {
		return token.Token{}, apierrors.NewInvalidRequestError("username does not match the required pattern", nil)
	}

	tok, err := token.NewToken()
	if err != nil {
		return token.Token{}, fmt.Errorf("minting session token: %w", err)
	}

	now := s.now()
	expires := now.Add(s.cfg.SessionLifetime)
	data := token.Data{
		Token:    tok,
		Username: username,
		Type:     token.TypeSession,
		Scopes:   token.SortScopes(append([]string(nil), scopes...)),
		Created:  now,
		Expires:  &expires,
		User:     user,
	}

	if err := s.writeNewToken(ctx, data, nil, nil, nil, username, ip); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

// CreateUserToken mints a user token on behalf of its own owner (spec.md
// §4.1 createUserToken). admins cannot call this path for another user:
// it requires auth.Username == owner because it has no user-metadata
// inputs of its own to populate a token for someone else.
func (s *Service) CreateUserToken(ctx context.Context, auth AuthInfo, owner, name string, scopes []string, expires *time.Time, ip string) (token.Token, error) {
	if auth.Username != owner {
		return token.Token{}, apierrors.NewPermissionDeniedError("can only create tokens for yourself", nil)
	}
	if err := s.validateKnownScopes(scopes); err != nil {
		return token.Token{}, err
	}
	if !auth.IsAdmin() && !token.ScopeSubset(scopes, auth.Scopes) {
		return token.Token{}, apierrors.NewInvalidScopesError("requested scopes exceed the authenticating token's scopes", nil)
	}

	now := s.now()
	var truncatedExpires *time.Time
	if expires != nil {
		truncated := expires.Truncate(time.Second)
		if truncated.Before(now.Add(s.cfg.MinimumLifetime)) {
			return token.Token{}, apierrors.NewInvalidExpiresError("expires must be at least the minimum lifetime in the future", nil)
		}
		truncatedExpires = &truncated
	}

	tok, err := token.NewToken()
	if err != nil {
		return token.Token{}, fmt.Errorf("minting user token: %w", err)
	}

	data := token.Data{
		Token:    tok,
		Username: owner,
		Type:     token.TypeUser,
		Scopes:   token.SortScopes(append([]string(nil), scopes...)),
		Created:  now,
		Expires:  truncatedExpires,
	}

	if err := s.writeNewToken(ctx, data, &name, nil, nil, auth.Username, ip); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

// AdminCreateRequest is the payload for createFromAdminRequest: either a
// user token (Name required, uniqueness enforced) or a service token
// (Owner must match the bot-user pattern).
type AdminCreateRequest struct {
	Owner   string
	Type    token.Type // TypeUser or TypeService
	Name    *string    // required for TypeUser
	Scopes  []string
	Expires *time.Time
	User    token.UserMetadata
}

// CreateFromAdminRequest mints a user or service token administratively
// (spec.md §4.1 createFromAdminRequest). Scenario P7: a service-token
// request for a non-bot-pattern owner is rejected as PermissionDenied,
// not as a validation error, because the bot-user rule is a policy
// boundary rather than a shape check.
func (s *Service) CreateFromAdminRequest(ctx context.Context, req AdminCreateRequest, auth AuthInfo, ip string) (token.Token, error) {
	if !auth.IsAdmin() {
		return token.Token{}, apierrors.NewPermissionDeniedError("admin:token is required", nil)
	}
	if req.Type != token.TypeUser && req.Type != token.TypeService {
		return token.Token{}, apierrors.NewInvalidRequestError("admin create only supports user or service tokens", nil)
	}
	if req.Type == token.TypeService && !token.BotUsernamePattern.MatchString(req.Owner) {
		return token.Token{}, apierrors.NewPermissionDeniedError("service tokens require a bot-user owner name", nil)
	}
	if req.Type == token.TypeUser && (req.Name == nil || *req.Name == "") {
		return token.Token{}, apierrors.NewInvalidRequestError("user tokens require a name", nil)
	}
	if err := s.validateKnownScopes(req.Scopes); err != nil {
		return token.Token{}, err
	}

	now := s.now()
	var truncatedExpires *time.Time
	if req.Expires != nil {
		truncated := req.Expires.Truncate(time.Second)
		truncatedExpires = &truncated
	}

	tok, err := token.NewToken()
	if err != nil {
		return token.Token{}, fmt.Errorf("minting admin-created token: %w", err)
	}

	data := token.Data{
		Token:    tok,
		Username: req.Owner,
		Type:     req.Type,
		Scopes:   token.SortScopes(append([]string(nil), req.Scopes...)),
		Created:  now,
		Expires:  truncatedExpires,
		User:     req.User,
	}

	if err := s.writeNewToken(ctx, data, req.Name, nil, nil, auth.Username, ip); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

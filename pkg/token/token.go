// Package token defines Gafaelfawr's token data model: the opaque bearer
// credential, its typed metadata, and the invariants that the token service
// and stores must preserve (sorted scopes, expiration narrowing, dual-store
// agreement).
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// KeyLength and SecretLength are the byte lengths of the random values
// backing a token's key and secret, before base64 encoding. 16 bytes (128
// bits) encodes to 22 url-safe base64 characters with no padding.
const (
	KeyLength    = 16
	SecretLength = 16

	tokenPrefix = "gt-"
	codePrefix  = "gc-"
)

// Token is an opaque bearer credential: a globally unique key plus a secret
// that is verified (never looked up) on presentation.
type Token struct {
	Key    string
	Secret string
}

// NewToken mints a new random Token.
func NewToken() (Token, error) {
	key, err := randomURLSafeString(KeyLength)
	if err != nil {
		return Token{}, fmt.Errorf("generating token key: %w", err)
	}
	secret, err := randomURLSafeString(SecretLength)
	if err != nil {
		return Token{}, fmt.Errorf("generating token secret: %w", err)
	}
	return Token{Key: key, Secret: secret}, nil
}

// String returns the wire form: "gt-<key>.<secret>".
func (t Token) String() string {
	return tokenPrefix + t.Key + "." + t.Secret
}

// ParseToken parses the wire form of a bearer token.
func ParseToken(s string) (Token, error) {
	key, secret, err := parseWireForm(s, tokenPrefix)
	if err != nil {
		return Token{}, err
	}
	return Token{Key: key, Secret: secret}, nil
}

// Matches reports whether secret equals t.Secret, in constant time.
func (t Token) Matches(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(t.Secret), []byte(secret)) == 1
}

// Code is an OIDC authorization code, wire-compatible with Token but
// carrying the "gc-" prefix instead of "gt-".
type Code struct {
	Key    string
	Secret string
}

// NewCode mints a new random authorization code.
func NewCode() (Code, error) {
	key, err := randomURLSafeString(KeyLength)
	if err != nil {
		return Code{}, fmt.Errorf("generating code key: %w", err)
	}
	secret, err := randomURLSafeString(SecretLength)
	if err != nil {
		return Code{}, fmt.Errorf("generating code secret: %w", err)
	}
	return Code{Key: key, Secret: secret}, nil
}

func (c Code) String() string {
	return codePrefix + c.Key + "." + c.Secret
}

// ParseCode parses the wire form of an authorization code.
func ParseCode(s string) (Code, error) {
	key, secret, err := parseWireForm(s, codePrefix)
	if err != nil {
		return Code{}, err
	}
	return Code{Key: key, Secret: secret}, nil
}

// Matches reports whether secret equals c.Secret, in constant time.
func (c Code) Matches(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

func parseWireForm(s, prefix string) (key, secret string, err error) {
	if !strings.HasPrefix(s, prefix) {
		return "", "", fmt.Errorf("invalid token prefix")
	}
	rest := strings.TrimPrefix(s, prefix)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid token format")
	}
	return parts[0], parts[1], nil
}

func randomURLSafeString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Type identifies the kind of token.
type Type string

// Token types, in policy order from spec.md §3.
const (
	TypeSession  Type = "session"
	TypeUser     Type = "user"
	TypeNotebook Type = "notebook"
	TypeInternal Type = "internal"
	TypeService  Type = "service"
)

// Valid reports whether t is one of the known token types.
func (t Type) Valid() bool {
	switch t {
	case TypeSession, TypeUser, TypeNotebook, TypeInternal, TypeService:
		return true
	}
	return false
}

// IsDerived reports whether tokens of this type are minted by derivation
// from a parent rather than directly by a principal.
func (t Type) IsDerived() bool {
	return t == TypeNotebook || t == TypeInternal
}

// UserMetadata is the snapshot of user-info fields embedded in a token,
// inherited unchanged by derived tokens.
type UserMetadata struct {
	Name   string
	Email  string
	UID    int64
	GID    int64
	Groups []string
}

// Data is the authoritative payload stored in the KV store (TokenData in
// spec.md §3). Scopes are always stored sorted (invariant I2).
type Data struct {
	Token    Token
	Username string
	Type     Type
	Scopes   []string
	Created  time.Time
	Expires  *time.Time
	User     UserMetadata
}

// SortScopes sorts s in place and returns it, establishing invariant I2.
func SortScopes(s []string) []string {
	sort.Strings(s)
	return s
}

// ScopesEqual reports whether a and b contain the same scopes, comparing
// sorted copies so callers need not pre-sort (used by audit, which must
// tolerate historically-unsorted KV entries).
func ScopesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// ScopeSubset reports whether every scope in subset is present in superset.
func ScopeSubset(subset, superset []string) bool {
	have := make(map[string]struct{}, len(superset))
	for _, s := range superset {
		have[s] = struct{}{}
	}
	for _, s := range subset {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// ScopeIntersection returns the scopes present in both a and b, sorted.
func ScopeIntersection(a, b []string) []string {
	have := make(map[string]struct{}, len(b))
	for _, s := range b {
		have[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := have[s]; ok {
			out = append(out, s)
		}
	}
	return SortScopes(out)
}

// TTL returns the KV TTL for expires relative to now: max(expires-now, 0),
// or 0 with ok=false when expires is nil (meaning "no TTL").
func TTL(expires *time.Time, now time.Time) (ttl time.Duration, ok bool) {
	if expires == nil {
		return 0, false
	}
	d := expires.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Info is the relational projection of a token (TokenInfo in spec.md §3).
type Info struct {
	Token    string // key only; the relational store never sees the secret
	Username string
	Type     Type
	Scopes   []string
	Created  time.Time
	Expires  *time.Time
	Name     *string // token_name, user tokens only
	Parent   *string // parent token key, derived types only
	Service  *string // downstream service name, internal tokens only
	User     UserMetadata
}

// Action identifies a change-history event kind.
type Action string

// Change-history actions.
const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionRevoke Action = "revoke"
	ActionExpire Action = "expire"
)

// InternalActor is the actor name recorded for sweep-driven expiration
// events, which have no human or service caller.
const InternalActor = "<internal>"

// BootstrapActor is the actor name recorded for actions authenticated via
// the out-of-band bootstrap token.
const BootstrapActor = "<bootstrap>"

// ChangeHistoryEntry is one append-only row in the change-history log.
type ChangeHistoryEntry struct {
	ID        int64
	Token     string
	Username  string
	Type      Type
	Name      *string
	Parent    *string
	Scopes    []string
	Service   *string
	Expires   *time.Time
	Actor     string
	Action    Action
	IPAddress string
	EventTime time.Time

	// Old* fields are populated only for Action == ActionEdit, holding the
	// pre-change values of fields that actually changed.
	OldName    *string
	OldScopes  []string
	OldExpires *time.Time
}

// UsernamePattern is the default validation pattern for usernames.
var UsernamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,63}$`)

// BotUsernamePattern matches the non-human service-account naming
// convention required for type=service tokens.
var BotUsernamePattern = regexp.MustCompile(`^bot-[a-z0-9-]+$`)

// CursorPattern validates a change-history pagination cursor.
var CursorPattern = regexp.MustCompile(`^\d+_\d+$`)

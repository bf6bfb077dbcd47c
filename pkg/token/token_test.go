package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenWireRoundTrip(t *testing.T) {
	tok, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, tok.Key, 22)
	assert.Len(t, tok.Secret, 22)

	wire := tok.String()
	assert.Regexp(t, `^gt-[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{22}$`, wire)

	parsed, err := ParseToken(wire)
	require.NoError(t, err)
	assert.Equal(t, tok, parsed)
	assert.True(t, parsed.Matches(tok.Secret))
	assert.False(t, parsed.Matches("wrong-secret-wrong-secret"))
}

func TestParseTokenInvalid(t *testing.T) {
	for _, bad := range []string{"", "gt-nodot", "gc-wrongprefix.secret", "gt-.emptykey", "gt-key."} {
		_, err := ParseToken(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewCodeWireRoundTrip(t *testing.T) {
	code, err := NewCode()
	require.NoError(t, err)
	wire := code.String()
	assert.Regexp(t, `^gc-[A-Za-z0-9_-]{22}\.[A-Za-z0-9_-]{22}$`, wire)

	parsed, err := ParseCode(wire)
	require.NoError(t, err)
	assert.True(t, parsed.Matches(code.Secret))
}

func TestScopesEqual(t *testing.T) {
	assert.True(t, ScopesEqual([]string{"b", "a"}, []string{"a", "b"}))
	assert.False(t, ScopesEqual([]string{"a"}, []string{"a", "b"}))
	assert.False(t, ScopesEqual([]string{"a", "c"}, []string{"a", "b"}))
}

func TestScopeSubset(t *testing.T) {
	assert.True(t, ScopeSubset([]string{"read:all"}, []string{"read:all", "user:token"}))
	assert.False(t, ScopeSubset([]string{"admin:token"}, []string{"read:all"}))
	assert.True(t, ScopeSubset(nil, []string{"read:all"}))
}

func TestScopeIntersection(t *testing.T) {
	got := ScopeIntersection([]string{"c", "a", "b"}, []string{"a", "c"})
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestTTL(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	ttl, ok := TTL(nil, now)
	assert.False(t, ok)
	assert.Zero(t, ttl)

	future := now.Add(time.Hour)
	ttl, ok = TTL(&future, now)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, ttl)

	past := now.Add(-time.Hour)
	ttl, ok = TTL(&past, now)
	assert.True(t, ok)
	assert.Zero(t, ttl)
}

func TestUsernamePattern(t *testing.T) {
	assert.True(t, UsernamePattern.MatchString("alice"))
	assert.True(t, UsernamePattern.MatchString("bot-svc"))
	assert.False(t, UsernamePattern.MatchString("Alice"))
	assert.False(t, UsernamePattern.MatchString("1alice"))
}

func TestBotUsernamePattern(t *testing.T) {
	assert.True(t, BotUsernamePattern.MatchString("bot-svc"))
	assert.False(t, BotUsernamePattern.MatchString("svc"))
}

func TestCursorPattern(t *testing.T) {
	assert.True(t, CursorPattern.MatchString("1700000000_42"))
	assert.False(t, CursorPattern.MatchString("abc_42"))
}

func TestTypeValidAndDerived(t *testing.T) {
	assert.True(t, TypeSession.Valid())
	assert.False(t, Type("bogus").Valid())
	assert.True(t, TypeNotebook.IsDerived())
	assert.True(t, TypeInternal.IsDerived())
	assert.False(t, TypeUser.IsDerived())
}

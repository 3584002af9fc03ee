package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.fieldcore.build/dispatch/schema"
)

func TestTokenIssuer_IssueThenVerify_RoundTrips(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	u := AuthUser{UserID: "user-1", Role: schema.RoleDispatcher, CompanyID: "company-1"}

	tok, err := issuer.Issue(u)
	require.NoError(t, err)

	got, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestTokenIssuer_Verify_RejectsWrongKey(t *testing.T) {
	issuer := NewTokenIssuer([]byte("key-a"), time.Hour)
	tok, err := issuer.Issue(AuthUser{UserID: "u1", Role: schema.RoleAdmin})
	require.NoError(t, err)

	other := NewTokenIssuer([]byte("key-b"), time.Hour)
	_, err = other.Verify(tok)
	assert.Error(t, err)
}

func TestTokenIssuer_Verify_RejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), -time.Hour)
	tok, err := issuer.Issue(AuthUser{UserID: "u1", Role: schema.RoleTechnician})
	require.NoError(t, err)

	_, err = issuer.Verify(tok)
	assert.Error(t, err)
}

func TestTokenIssuer_Verify_RejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	_, err := issuer.Verify("not-a-jwt")
	assert.Error(t, err)
}

func TestAuthUser_IsPlatform(t *testing.T) {
	assert.True(t, AuthUser{Role: schema.RolePlatform}.IsPlatform())
	assert.False(t, AuthUser{Role: schema.RoleAdmin}.IsPlatform())
}

func hashKey32() []byte  { return []byte("01234567890123456789012345678901") }
func blockKey32() []byte { return []byte("abcdefghijklmnopqrstuvwxabcdefgh") }

func TestETASigner_IssueThenVerify_RoundTrips(t *testing.T) {
	s := NewETASigner(hashKey32(), blockKey32(), time.Hour)
	tok, err := s.Issue("job-123")
	require.NoError(t, err)

	jobID, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "job-123", jobID)
}

func TestETASigner_Verify_RejectsExpiredToken(t *testing.T) {
	s := NewETASigner(hashKey32(), blockKey32(), -time.Hour)
	tok, err := s.Issue("job-123")
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.Error(t, err)
}

func TestETASigner_Verify_RejectsTamperedToken(t *testing.T) {
	s := NewETASigner(hashKey32(), blockKey32(), time.Hour)
	tok, err := s.Issue("job-123")
	require.NoError(t, err)

	_, err = s.Verify(tok + "x")
	assert.Error(t, err)
}

func TestETASigner_Verify_RejectsTokenFromDifferentKeys(t *testing.T) {
	a := NewETASigner(hashKey32(), blockKey32(), time.Hour)
	tok, err := a.Issue("job-123")
	require.NoError(t, err)

	b := NewETASigner([]byte("10987654321098765432109876543210"), blockKey32(), time.Hour)
	_, err = b.Verify(tok)
	assert.Error(t, err)
}

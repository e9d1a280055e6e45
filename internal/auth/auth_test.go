package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	req := require.New(t)
	svc := NewTokenService("secret", 7*24*time.Hour)

	token, err := svc.Issue("u1")
	req.NoError(err)

	subject, err := svc.Verify(token)
	req.NoError(err)
	req.Equal("u1", subject)
}

func TestVerifyFailsClosed(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)
	valid, err := svc.Issue("u1")
	require.NoError(t, err)

	expired := NewTokenService("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue("u1")
	require.NoError(t, err)

	otherKey, err := NewTokenService("other", time.Hour).Issue("u1")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered", valid[:len(valid)-2] + "xx"},
		{"expired", expiredToken},
		{"wrong key", otherKey},
		{"alg none", unsigned},
		{"missing expiry", noExpiry},
		{"missing subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := svc.Verify(tt.token)
			require.ErrorIs(t, err, ErrUnauthenticated)
			require.Empty(t, subject)
		})
	}
}

func TestIssueRequiresUser(t *testing.T) {
	_, err := NewTokenService("secret", time.Hour).Issue(" ")
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	req := require.New(t)

	token, ok := BearerToken("Bearer abc")
	req.True(ok)
	req.Equal("abc", token)

	for _, header := range []string{"", "abc", "Basic abc", "Bearer", "Bearer "} {
		_, ok := BearerToken(header)
		req.False(ok, header)
	}
}

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("hunter2")
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$2a$"))

	match, err := ComparePassword("hunter2", hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong", hash)
	req.NoError(err)
	req.False(match)

	match, err = ComparePassword("hunter2", "")
	req.NoError(err)
	req.False(match)
}

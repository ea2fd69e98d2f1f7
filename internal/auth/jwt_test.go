package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-chars!!"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret)
	require.NoError(t, err)
	return ts
}

func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService("short")
	assert.Error(t, err)

	_, err = NewTokenService("this-is-16-chars")
	assert.NoError(t, err)
}

func TestGenerate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("analyst-1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "a JWT has three dot-separated parts")

	subject, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst-1", subject)
}

func TestGenerate_RequiresSubject(t *testing.T) {
	ts := newTestTokenService(t)

	_, err := ts.Generate("")
	assert.Error(t, err)
}

func TestGenerateWithDuration(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("analyst-1", 24*time.Hour)
	require.NoError(t, err)

	subject, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst-1", subject)
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)

	valid, err := ts.Generate("analyst-1")
	require.NoError(t, err)

	expired, err := ts.GenerateWithDuration("analyst-1", -time.Second)
	require.NoError(t, err)

	other, err := NewTokenService("another-secret-of-enough-length")
	require.NoError(t, err)
	wrongSecret, err := other.Generate("analyst-1")
	require.NoError(t, err)

	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "analyst-1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "analyst-1",
		Issuer:  issuer,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "analyst-1",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
		{"tampered signature", valid[:len(valid)-3] + "xxx"},
		{"expired", expired},
		{"wrong secret", wrongSecret},
		{"foreign issuer", foreignIssuer},
		{"no expiry", noExpiry},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

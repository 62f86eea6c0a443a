package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	assert.NoError(t, err, "expected no error hashing password")
	assert.NotEqual(t, "s3cret", hash, "expected hash to differ from the plain password")

	assert.True(t, VerifyPassword(hash, "s3cret"), "expected matching password to verify")
	assert.False(t, VerifyPassword(hash, "wrong"), "expected non-matching password to fail")
}

func TestCreateAndVerifyToken(t *testing.T) {
	signingKey := []byte("test-signing-key")

	token, err := CreateToken(signingKey, 42, time.Hour)
	assert.NoError(t, err, "expected no error creating token")
	assert.NotEmpty(t, token, "expected a token string")

	userId, err := VerifyToken(signingKey, token)
	assert.NoError(t, err, "expected no error verifying token")
	assert.Equal(t, 42, userId, "expected user id to round-trip")
}

func TestVerifyTokenErrors(t *testing.T) {
	signingKey := []byte("test-signing-key")

	tcases := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "garbage token",
			token: func(t *testing.T) string {
				return "not-a-token"
			},
		},
		{
			name: "wrong signing key",
			token: func(t *testing.T) string {
				token, err := CreateToken([]byte("other-key"), 42, time.Hour)
				assert.NoError(t, err)
				return token
			},
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				token, err := CreateToken(signingKey, 42, -time.Hour)
				assert.NoError(t, err)
				return token
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := VerifyToken(signingKey, tc.token(t))
			assert.Error(t, err, "expected verification to fail")
		})
	}
}

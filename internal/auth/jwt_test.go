package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koombo/koombo/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	token, err := GenerateToken(userID, "ana@example.com", models.RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "koombo", claims.Issuer)
}

func TestParseTokenWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken(uuid.New(), "ana@example.com", models.RoleUser, "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken(uuid.New(), "ana@example.com", models.RoleUser, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	require.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseToken("not-a-token", "secret")
	require.Error(t, err)
}

package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	s, err := BuildJWTString("secret", "clerk-1", time.Hour)
	require.NoError(t, err)

	userCode, err := GetUserCode("secret", s)
	require.NoError(t, err)
	require.Equal(t, "clerk-1", userCode)

	_, err = GetUserCode("other", s)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := BuildJWTString("secret", "clerk-1", -time.Minute)
	require.NoError(t, err)
	_, err = GetUserCode("secret", expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = BuildJWTString("", "clerk-1", time.Hour)
	require.ErrorIs(t, err, ErrInvalidToken)
}

package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParseRoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret")
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	token, err := iss.Issue("sess-42", 7, exp)
	require.NoError(t, err)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "sess-42", claims.SessionID)
	assert.Equal(t, int64(7), claims.UserID)
	assert.True(t, exp.Equal(claims.ExpiresAt))
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("s3cret")
	valid := time.Now().Add(time.Hour)

	expired, err := iss.Issue("sess", 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	otherKey, err := NewIssuer("different").Issue("sess", 1, valid)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ID: "sess", Subject: "1", ExpiresAt: jwt.NewNumericDate(valid),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSession, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "1", ExpiresAt: jwt.NewNumericDate(valid),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID: "sess", Subject: "alice", ExpiresAt: jwt.NewNumericDate(valid),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":     "not-a-token",
		"expired":     expired,
		"wrong key":   otherKey,
		"alg none":    noneAlg,
		"no session":  noSession,
		"bad subject": badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := iss.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

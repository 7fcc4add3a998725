package hostbridge

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthHeaderToken(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.GenerateToken("session-1", jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	r := &http.Request{Header: http.Header{"Authorization": []string{"Bearer " + token}}, URL: &url.URL{}}
	sessionID, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)
}

func TestJWTAuthQueryParamToken(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.GenerateToken("session-2", jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	r := &http.Request{Header: http.Header{}, URL: &url.URL{RawQuery: "token=" + token}}
	sessionID, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "session-2", sessionID)
}

func TestJWTAuthSubprotocolToken(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.GenerateToken("session-3", jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	r := &http.Request{
		Header: http.Header{"Sec-Websocket-Protocol": []string{"auth-" + token}},
		URL:    &url.URL{},
	}
	sessionID, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "session-3", sessionID)
}

func TestJWTAuthMissingToken(t *testing.T) {
	auth := NewJWTAuth("secret")
	r := &http.Request{Header: http.Header{}, URL: &url.URL{}}
	_, err := auth.Authenticate(r)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestJWTAuthExpiredToken(t *testing.T) {
	auth := NewJWTAuth("secret")
	token, err := auth.GenerateToken("session-4", jwt.NewNumericDate(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	_, err = auth.validateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTAuthWrongSecretRejected(t *testing.T) {
	issuer := NewJWTAuth("secret-a")
	token, err := issuer.GenerateToken("session-5", jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	verifier := NewJWTAuth("secret-b")
	_, err = verifier.validateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNoAuthUsesSessionParamOrDefault(t *testing.T) {
	auth := NewNoAuth()

	r := &http.Request{URL: &url.URL{RawQuery: "session=campaign-42"}}
	sessionID, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "campaign-42", sessionID)

	r2 := &http.Request{URL: &url.URL{}}
	sessionID2, err := auth.Authenticate(r2)
	require.NoError(t, err)
	assert.Equal(t, "default", sessionID2)
}

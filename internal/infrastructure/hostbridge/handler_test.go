package hostbridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRejectsUnauthenticatedConnection(t *testing.T) {
	hub := NewHub(testLogger())
	auth := NewJWTAuth("secret")
	handler := NewHandler(hub, auth, nil, testLogger())

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, hub.SessionCount())
}

func TestHandlerUpgradesAndRegistersAuthenticatedConnection(t *testing.T) {
	hub := NewHub(testLogger())
	auth := NewNoAuth()
	handler := NewHandler(hub, auth, nil, testLogger())

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?session=camp-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := hub.Get("camp-1"); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, ok := hub.Get("camp-1")
	assert.True(t, ok)
}

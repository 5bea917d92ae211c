package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

func newTestHub(t *testing.T) *WSHub {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	hub := NewWSHub(logger)
	hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func dialHub(t *testing.T, hub *WSHub) *websocket.Conn {
	t.Helper()
	upgrader := &websocket.Upgrader{}
	server := httptest.NewServer(hub.HandleConnection(upgrader))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsWelcomeMessage(t *testing.T) {
	hub := newTestHub(t)
	conn := dialHub(t, hub)

	msg := readMessage(t, conn)
	assert.Equal(t, WSMessageTypeConnection, msg.Type)
	assert.NotEmpty(t, msg.ClientID)
}

func TestHubBroadcastsRunEvents(t *testing.T) {
	hub := newTestHub(t)
	conn := dialHub(t, hub)
	readMessage(t, conn) // welcome

	require.Eventually(t, func() bool {
		return hub.ConnectedClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.NotifyRunStarted(42, types.KindDRM)
	msg := readMessage(t, conn)
	assert.Equal(t, WSMessageTypeRunStarted, msg.Type)

	hub.NotifyRunFinished(42, types.KindDRM, true, 1234, "")
	msg = readMessage(t, conn)
	assert.Equal(t, WSMessageTypeRunComplete, msg.Type)

	hub.NotifyRunFinished(43, types.KindDRM, false, 0, "injected fault")
	msg = readMessage(t, conn)
	assert.Equal(t, WSMessageTypeRunFailed, msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "injected fault", data["error"])
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := newTestHub(t)
	conn := dialHub(t, hub)
	readMessage(t, conn)

	require.Eventually(t, func() bool {
		return hub.ConnectedClients() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ConnectedClients() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	hub := newTestHub(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.NotifyRunStarted(int64(i), types.KindPlayer)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked without consumers")
	}
}

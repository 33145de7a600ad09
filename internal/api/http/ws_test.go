package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedFrame struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	Peer   *struct {
		Name string `json:"name"`
	} `json:"peer,omitempty"`
	Messages []struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"messages,omitempty"`
	Signal *struct {
		Type    string `json:"type"`
		Payload string `json:"payload"`
		Sender  string `json:"sender"`
	} `json:"signal,omitempty"`
	Error string `json:"error,omitempty"`
}

func readFrame(t *testing.T, conn *websocket.Conn) feedFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame feedFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestAPI_RoomFeed(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	_, hostToken := onboard(t, router, "host", "SPEAKER")
	_, guestToken := onboard(t, router, "guest", "LISTENER")

	w := doJSON(t, router, http.MethodPost, "/api/rooms", hostToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Room struct {
			Code string `json:"code"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	code := created.Room.Code

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/" + code + "/ws?role=host"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, "status", frame.Type)
	assert.Equal(t, "waiting", frame.Status)
	assert.Nil(t, frame.Peer)

	w = doJSON(t, router, http.MethodPost, "/api/rooms/"+code+"/join", guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	frame = readFrame(t, conn)
	assert.Equal(t, "status", frame.Type)
	assert.Equal(t, "connected", frame.Status)
	require.NotNil(t, frame.Peer)
	assert.Equal(t, "guest", frame.Peer.Name)

	// Chat sent over the feed comes back as a full re-sorted snapshot.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "sender": "user", "text": "hello"}))
	frame = readFrame(t, conn)
	require.Equal(t, "messages", frame.Type)
	require.Len(t, frame.Messages, 1)
	assert.Equal(t, "hello", frame.Messages[0].Text)

	// Signals tagged with a role other than the connection's are
	// rejected without breaking the feed.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "signal",
		"signal": map[string]any{"type": "offer", "payload": "{}", "sender": "guest"},
	}))
	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)

	// Leaving the room must surface as a terminal ended frame, then the
	// server closes the socket.
	w = doJSON(t, router, http.MethodDelete, "/api/rooms/"+code, hostToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	frame = readFrame(t, conn)
	assert.Equal(t, "status", frame.Type)
	assert.Equal(t, "ended", frame.Status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var extra feedFrame
	err = conn.ReadJSON(&extra)
	require.Error(t, err, "no frame after ended, the server closes the feed")
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) ||
		strings.Contains(err.Error(), "close"), "expected a close, got: %v", err)
}

func TestAPI_RoomFeed_InvalidRole(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	_, hostToken := onboard(t, router, "host", "SPEAKER")

	w := doJSON(t, router, http.MethodPost, "/api/rooms", hostToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Room struct {
			Code string `json:"code"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodGet, "/api/rooms/"+created.Room.Code+"/ws?role=admin", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

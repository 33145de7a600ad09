package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/quietline/quietline/internal/api/http"
	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/chat"
	"github.com/quietline/quietline/internal/persona"
	"github.com/quietline/quietline/internal/profile"
	"github.com/quietline/quietline/internal/repository"
	"github.com/quietline/quietline/internal/room"
)

const testSecret = "test-secret"

type stubGenerator struct{}

func (stubGenerator) Complete(context.Context, persona.Request) (string, error) {
	return "", errors.New("offline in tests")
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ch := channel.NewMemory()
	profileService := profile.NewService(repository.NewInMemoryProfileRepository(), nil)
	roomService := room.NewService(ch, nil)
	chatService := chat.NewService(ch, nil)
	personaService := persona.NewService(stubGenerator{}, nil)

	return httpapi.SetupRouter(
		httpapi.NewProfileController(profileService, testSecret),
		httpapi.NewRoomController(roomService, chatService, profileService, ch, nil),
		httpapi.NewMatchController(personaService, profileService),
		[]string{"http://localhost:3000"},
		testSecret,
	)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func onboard(t *testing.T, router *gin.Engine, name, role string) (profileID, token string) {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/profiles", "", gin.H{
		"name": name, "age_range": "25-34", "role": role, "mood": "calm",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Profile struct {
			ID string `json:"id"`
		} `json:"profile"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Profile.ID)
	require.NotEmpty(t, resp.Token)
	return resp.Profile.ID, resp.Token
}

func TestAPI_ProfileLifecycle(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	id, token := onboard(t, router, "sam", "SPEAKER")

	w := doJSON(t, router, http.MethodGet, "/api/profiles/"+id, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Reset requires the matching token.
	w = doJSON(t, router, http.MethodDelete, "/api/profiles/"+id, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/profiles/"+id, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/profiles/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_CreateProfile_InvalidRole(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/profiles", "", gin.H{
		"name": "sam", "role": "ADMIN",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Earnings(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	listenerID, listenerToken := onboard(t, router, "lee", "LISTENER")
	speakerID, speakerToken := onboard(t, router, "sam", "SPEAKER")

	w := doJSON(t, router, http.MethodPost, "/api/profiles/"+listenerID+"/earnings", listenerToken, gin.H{"amount": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Profile struct {
			Earnings int `json:"earnings"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Profile.Earnings)

	// Speakers never accumulate earnings.
	w = doJSON(t, router, http.MethodPost, "/api/profiles/"+speakerID+"/earnings", speakerToken, gin.H{"amount": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A token for another profile is rejected.
	w = doJSON(t, router, http.MethodPost, "/api/profiles/"+listenerID+"/earnings", speakerToken, gin.H{"amount": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPI_RoomLifecycle(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	_, hostToken := onboard(t, router, "host", "SPEAKER")
	_, guestToken := onboard(t, router, "guest", "LISTENER")

	w := doJSON(t, router, http.MethodPost, "/api/rooms", hostToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Room struct {
			Code   string `json:"code"`
			Status string `json:"status"`
		} `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created.Room.Code, 6)
	assert.Equal(t, "waiting", created.Room.Status)

	// The code is publicly resolvable.
	w = doJSON(t, router, http.MethodGet, "/api/rooms/"+created.Room.Code, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/rooms/"+created.Room.Code+"/join", guestToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The room is full now.
	_, lateToken := onboard(t, router, "late", "LISTENER")
	w = doJSON(t, router, http.MethodPost, "/api/rooms/"+created.Room.Code+"/join", lateToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/rooms/"+created.Room.Code, hostToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/rooms/"+created.Room.Code, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_GetRoom_InvalidCode(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/rooms/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_MatchSession_FallbackPersona(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	_, token := onboard(t, router, "sam", "SPEAKER")

	w := doJSON(t, router, http.MethodPost, "/api/match", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		SessionID string `json:"session_id"`
		Persona   struct {
			Name string `json:"name"`
		} `json:"persona"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "Alex", created.Persona.Name, "offline provider falls back to the built-in persona")

	w = doJSON(t, router, http.MethodPost, "/api/match/"+created.SessionID+"/messages", token, gin.H{"text": "hi"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply struct {
		Message struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "peer", reply.Message.Sender)
	assert.Equal(t, "I'm having a bit of trouble with my connection... can you repeat that?", reply.Message.Text)

	w = doJSON(t, router, http.MethodDelete, "/api/match/"+created.SessionID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/match/"+created.SessionID+"/messages", token, gin.H{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_Healthz(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

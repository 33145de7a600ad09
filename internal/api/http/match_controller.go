package http

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/persona"
	"github.com/quietline/quietline/internal/profile"
)

type MatchController struct {
	personas *persona.Service
	profiles *profile.Service

	mu       sync.Mutex
	sessions map[uuid.UUID]*persona.Conversation
}

func NewMatchController(personas *persona.Service, profiles *profile.Service) *MatchController {
	return &MatchController{
		personas: personas,
		profiles: profiles,
		sessions: make(map[uuid.UUID]*persona.Conversation),
	}
}

// CreateMatch builds a persona tailored to the caller's profile and opens
// a conversation with it. Persona generation never fails outright, a
// provider outage yields the built-in fallback persona instead.
func (c *MatchController) CreateMatch(ctx *gin.Context) {
	id, ok := profileID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "profile not authenticated"})
		return
	}

	prof, err := c.profiles.Get(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	p := c.personas.GeneratePersona(ctx.Request.Context(), prof)
	conv := c.personas.StartConversation(p)

	sessionID := uuid.New()
	c.mu.Lock()
	c.sessions[sessionID] = conv
	c.mu.Unlock()

	ctx.JSON(http.StatusCreated, gin.H{
		"session_id": sessionID,
		"persona":    gin.H{"name": p.Name},
	})
}

type matchMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMatchMessage forwards the user's text to the session's persona and
// returns the reply shaped as a peer message.
func (c *MatchController) SendMatchMessage(ctx *gin.Context) {
	sessionID, err := uuid.Parse(ctx.Param("sessionID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	c.mu.Lock()
	conv, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "match session not found"})
		return
	}

	var req matchMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply := conv.Send(ctx.Request.Context(), req.Text)
	ctx.JSON(http.StatusOK, gin.H{
		"message": domain.NewMessage(domain.SenderPeer, reply),
	})
}

// EndMatch drops the session. Ending an unknown session is not an error.
func (c *MatchController) EndMatch(ctx *gin.Context) {
	sessionID, err := uuid.Parse(ctx.Param("sessionID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	ctx.JSON(http.StatusOK, gin.H{"message": "match ended"})
}

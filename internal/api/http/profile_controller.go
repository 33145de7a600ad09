package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/profile"
	"github.com/quietline/quietline/internal/repository"
)

type ProfileController struct {
	profiles  *profile.Service
	jwtSecret string
}

func NewProfileController(profiles *profile.Service, jwtSecret string) *ProfileController {
	return &ProfileController{profiles: profiles, jwtSecret: jwtSecret}
}

func (c *ProfileController) CreateProfile(ctx *gin.Context) {
	type request struct {
		Name     string   `json:"name" binding:"required"`
		AgeRange string   `json:"age_range"`
		Role     string   `json:"role" binding:"required"`
		Mood     string   `json:"mood"`
		Bio      string   `json:"bio"`
		Topics   []string `json:"topics"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	p, err := c.profiles.Onboard(ctx.Request.Context(), req.Name, req.AgeRange, domain.UserRole(req.Role), req.Mood, req.Bio, req.Topics)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrNameRequired) || errors.Is(err, profile.ErrInvalidRole) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	token, err := issueSessionToken(c.jwtSecret, p.ID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session token"})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"profile": p, "token": token})
}

func (c *ProfileController) GetProfile(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("profileID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return
	}

	p, err := c.profiles.Get(ctx.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"profile": p})
}

// AddEarnings credits the authenticated listener after a qualifying
// session.
func (c *ProfileController) AddEarnings(ctx *gin.Context) {
	id, ok := c.authorizedProfile(ctx)
	if !ok {
		return
	}

	type request struct {
		Amount int `json:"amount" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	p, err := c.profiles.AddEarnings(ctx.Request.Context(), id, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, profile.ErrInvalidEarnings):
			status = http.StatusBadRequest
		case errors.Is(err, profile.ErrNotListener):
			status = http.StatusForbidden
		case errors.Is(err, repository.ErrProfileNotFound):
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"profile": p})
}

// ResetProfile removes the profile; the session token becomes useless.
func (c *ProfileController) ResetProfile(ctx *gin.Context) {
	id, ok := c.authorizedProfile(ctx)
	if !ok {
		return
	}

	if err := c.profiles.Reset(ctx.Request.Context(), id); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "profile reset"})
}

// authorizedProfile requires that the path profile matches the token's.
func (c *ProfileController) authorizedProfile(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("profileID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return uuid.Nil, false
	}
	authID, ok := profileID(ctx)
	if !ok || authID != id {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "token does not match profile"})
		return uuid.Nil, false
	}
	return id, true
}

package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(
	profileController *ProfileController,
	roomController *RoomController,
	matchController *MatchController,
	allowedOrigins []string,
	jwtSecret string,
) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	auth := SessionAuth(jwtSecret)

	if profileController != nil {
		profiles := api.Group("/profiles")
		profiles.POST("", profileController.CreateProfile)
		profiles.GET("/:profileID", profileController.GetProfile)
		profiles.POST("/:profileID/earnings", auth, profileController.AddEarnings)
		profiles.DELETE("/:profileID", auth, profileController.ResetProfile)
	}

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.POST("", auth, roomController.CreateRoom)
		rooms.GET("/:code", roomController.GetRoom)
		rooms.POST("/:code/join", auth, roomController.JoinRoom)
		rooms.DELETE("/:code", auth, roomController.LeaveRoom)
		rooms.GET("/:code/ws", roomController.AttachRoom)
	}

	if matchController != nil {
		match := api.Group("/match")
		match.POST("", auth, matchController.CreateMatch)
		match.POST("/:sessionID/messages", auth, matchController.SendMatchMessage)
		match.DELETE("/:sessionID", auth, matchController.EndMatch)
	}

	return router
}

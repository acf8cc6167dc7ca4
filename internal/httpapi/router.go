package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicethink/coach/internal/common"
	"github.com/voicethink/coach/internal/httpapi/handlers"
	"github.com/voicethink/coach/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	// CRUD users register
	r.POST("/users", h.Register)

	// auth
	r.POST("/login", h.Login)

	// voice bridge: called by the realtime gateway on behalf of the user, so
	// the user id travels in the body instead of a bearer token.
	r.POST("/voice/log", h.LogVoice)
	r.POST("/realtime/token", h.RealtimeToken)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/profile", h.GetProfile)

	// Conversation (JWT required)
	authGroup.POST("/conversations/messages", h.SendMessage)
	authGroup.POST("/conversations/messages/stream", h.SendMessageStream)
	authGroup.POST("/conversations/messages/async", h.SendMessageAsync)
	authGroup.GET("/conversations/jobs/:job_id", h.GetJob)

	// Prompt configuration
	authGroup.GET("/config/prompts", h.ListPrompts)
	authGroup.POST("/config/prompts", h.SavePrompt)
	authGroup.DELETE("/config/prompts/:id", h.DeletePrompt)
	authGroup.POST("/config/prompt-contexts", h.SavePromptContext)
	authGroup.DELETE("/config/prompt-contexts/:id", h.DeletePromptContext)

	return r
}

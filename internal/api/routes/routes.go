package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/api/handlers"
	"github.com/nuevpro/ventas/internal/api/middleware"
	"github.com/nuevpro/ventas/internal/ratelimit"
)

type Deps struct {
	Session      *handlers.SessionHandler
	Conversation *handlers.ConversationHandler
	Knowledge    *handlers.KnowledgeHandler
	Profile      *handlers.ProfileHandler
	Voice        *handlers.VoiceHandler
	Scenario     *handlers.ScenarioHandler
	Challenge    *handlers.ChallengeHandler
	WS           *handlers.WSHandler

	JWT         middleware.JWTConfig
	AILimiter   ratelimit.Limiter
	CORSOrigins []string
	Log         *logrus.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = d.CORSOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-Id")
	corsCfg.ExposeHeaders = []string{"X-Request-Id"}
	if len(d.CORSOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	log := d.Log
	if log == nil {
		log = logrus.New()
	}

	// AI-backed calls share one per-user budget
	ai := []gin.HandlerFunc{}
	if d.AILimiter != nil {
		ai = append(ai, middleware.RateLimit(d.AILimiter, log))
	}
	with := func(h gin.HandlerFunc) []gin.HandlerFunc { return append(append([]gin.HandlerFunc{}, ai...), h) }

	auth.POST("/sessions", d.Session.Start)
	auth.GET("/sessions", d.Session.List)
	auth.GET("/sessions/:session_id", d.Session.Get)
	auth.POST("/sessions/:session_id/messages", with(d.Conversation.SaveMessage)...)
	auth.GET("/sessions/:session_id/messages", d.Conversation.Messages)
	auth.POST("/sessions/:session_id/pause", d.Session.Pause)
	auth.POST("/sessions/:session_id/resume", d.Session.Resume)
	auth.POST("/sessions/:session_id/end", with(d.Session.End)...)
	auth.GET("/sessions/:session_id/evaluation", d.Session.Evaluation)
	auth.POST("/sessions/:session_id/evaluate", with(d.Session.Evaluate)...)

	auth.GET("/voices", d.Voice.Catalog)
	auth.GET("/voices/random", d.Voice.Random)
	auth.POST("/speech/synthesize", with(d.Voice.Synthesize)...)
	auth.POST("/speech/transcribe", with(d.Voice.Transcribe)...)

	auth.GET("/scenarios", d.Scenario.List)
	auth.GET("/scenarios/:id", d.Scenario.Get)
	auth.POST("/scenarios", middleware.RequireAdmin(), d.Scenario.Create)
	auth.PUT("/scenarios/:id", middleware.RequireAdmin(), d.Scenario.Update)

	auth.GET("/knowledge", d.Knowledge.List)
	auth.POST("/knowledge", d.Knowledge.Create)
	auth.POST("/knowledge/upload", with(d.Knowledge.Upload)...)
	auth.POST("/knowledge/extract-url", with(d.Knowledge.ExtractURL)...)
	auth.DELETE("/knowledge/:id", d.Knowledge.Delete)

	auth.GET("/me/stats", d.Profile.Stats)
	auth.GET("/me/achievements", d.Profile.MyAchievements)
	auth.GET("/achievements", d.Profile.Achievements)
	auth.GET("/me/preferences", d.Profile.Preferences)
	auth.PUT("/me/preferences", d.Profile.UpdatePreferences)

	auth.GET("/challenges", d.Challenge.List)
	auth.POST("/challenges", middleware.RequireAdmin(), d.Challenge.Create)
	auth.POST("/challenges/:id/join", d.Challenge.Join)
	auth.GET("/challenges/:id/leaderboard", d.Challenge.Leaderboard)

	// WebSocket
	auth.GET("/ws/sessions/:session_id", d.WS.SessionWS)
}

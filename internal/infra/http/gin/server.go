package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"bazaar/internal/infra/config"
	"bazaar/internal/infra/obs"
)

type Handlers struct {
	Conversations  ConversationHTTP
	Offers         OfferHTTP
	Moderation     ModerationHTTP
	Live           LiveHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{Addr: cfg.HTTPAddr, Handler: NewRouter(cfg, obsMW, health, h), ReadHeaderTimeout: 10 * time.Second}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Conversations != nil {
		api.POST("/conversations", h.Conversations.Create)
		api.GET("/conversations", h.Conversations.List)
		api.GET("/conversations/:id", h.Conversations.Get)
		api.GET("/conversations/:id/messages", h.Conversations.Messages)
		api.POST("/conversations/:id/messages", h.Conversations.Send)
		api.POST("/conversations/:id/read", h.Conversations.MarkRead)
	}
	if h.Offers != nil {
		api.POST("/conversations/:id/offers", h.Offers.Create)
		api.GET("/conversations/:id/offers", h.Offers.List)
		api.GET("/offers/:id", h.Offers.Get)
		api.POST("/offers/:id/accept", h.Offers.Accept)
		api.POST("/offers/:id/reject", h.Offers.Reject)
		api.POST("/offers/:id/counter", h.Offers.Counter)
	}
	if h.Moderation != nil {
		api.GET("/blocks", h.Moderation.ListBlocked)
		api.PUT("/blocks/:user_id", h.Moderation.Block)
		api.DELETE("/blocks/:user_id", h.Moderation.Unblock)
		api.POST("/reports", h.Moderation.FileReport)
		admin := api.Group("/admin/reports")
		admin.GET("", h.Moderation.ListReports)
		admin.POST("/:id/resolve", h.Moderation.ResolveReport)
		admin.POST("/:id/dismiss", h.Moderation.DismissReport)
	}
	if h.Live != nil {
		api.GET("/ws/conversations", h.Live.Conversations)
		api.GET("/ws/conversations/:id/messages", h.Live.Messages)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/layer-3/pairgate/ports"
	"github.com/layer-3/pairgate/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies is everything the router needs
type Dependencies struct {
	Auth           *service.AuthService
	Tokenizer      ports.Tokenizer
	Registry       *service.Registry
	Coordinator    *service.Coordinator
	Quota          *service.QuotaService
	Payments       *service.PaymentService
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
	CookieSecure   bool
	CallbackSecret string // signs payment provider callbacks
}

// SetupRouter sets up the Gin router
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(deps.Logger))

	// Create handlers
	auth := NewAuthHandlers(deps.Auth, deps.Tokenizer, deps.CookieSecure)
	queue := NewQueueHandlers(deps.Coordinator, deps.Quota, deps.Payments)
	gateway := NewGateway(deps.Auth, deps.Registry, deps.Coordinator, deps.Quota, deps.Metrics, deps.Logger)

	router.GET("/healthz", Healthz)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/ws", SessionMiddleware(deps.Tokenizer), gateway.Serve)

	api := router.Group("/api")
	api.Use(SessionMiddleware(deps.Tokenizer))
	{
		api.GET("/nonce", auth.Nonce)
		api.POST("/verify-siwe", auth.VerifySIWE)
		api.POST("/verify-worldid", auth.VerifyWorldID)

		api.GET("/queue-status", queue.QueueStatus)
		api.GET("/quota", queue.Quota)
		api.POST("/initiate-payment", queue.InitiatePayment)
		api.POST("/confirm-payment", CallbackMiddleware(deps.CallbackSecret), queue.ConfirmPayment)
	}

	return router
}

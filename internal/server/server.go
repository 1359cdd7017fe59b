package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vpsbot/internal/auth"
	"vpsbot/internal/chat"
	"vpsbot/internal/config"
	"vpsbot/internal/ledger"
	"vpsbot/internal/logger"
	"vpsbot/internal/payment"
	"vpsbot/internal/provision"
	"vpsbot/internal/settlement"
)

type Deps struct {
	Ledger    *ledger.Service
	Payments  *payment.Service
	Provision *provision.Service
	Chat      *chat.Router
	Outbox    chat.Outbox
	// Simulator is set only when the simulated settlement feed is in use.
	Simulator *settlement.SimulatedFeed
	Checks    map[string]Check
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     *config.Config
	limiter    *RateLimiter
	chatLimit  *RateLimiter
}

func New(cfg *config.Config, d Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	s := &Server{
		router:    router,
		config:    cfg,
		limiter:   NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute),
		chatLimit: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute),
	}

	ledgerHandler := ledger.NewHandler(d.Ledger)
	paymentHandler := payment.NewHandler(d.Payments)
	provisionHandler := provision.NewHandler(d.Provision)
	webhook := &chatWebhook{router: d.Chat, outbox: d.Outbox, limiter: s.chatLimit, secret: cfg.ChatWebhookSecret}
	if cfg.ChatWebhookSecret == "" {
		logger.Warn("CHAT_WEBHOOK_SECRET is empty, chat webhook will refuse all updates")
	}

	router.GET("/health", Health(d.Checks))
	router.GET("/metrics", Metrics())
	router.POST("/webhook/chat", webhook.Handle)

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(s.limiter))
	{
		public.POST("/refresh", refreshToken(cfg.JWTSecret))
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/api")
	protected.Use(authMiddleware, RateLimitMiddleware(s.limiter))
	{
		protected.GET("/wallet", ledgerHandler.GetBalance)
		protected.GET("/transactions", ledgerHandler.ListTransactions)

		protected.POST("/payments", paymentHandler.Create)
		protected.GET("/payments", paymentHandler.ListMine)
		protected.GET("/payments/:ref", TimeoutMiddleware(cfg.Payment.StatusTimeout), paymentHandler.Status)

		protected.GET("/servers/catalog", provisionHandler.Catalog)
		protected.GET("/servers", provisionHandler.List)
		protected.POST("/servers", provisionHandler.Purchase)
		protected.POST("/servers/:id/actions", provisionHandler.Control)
		protected.DELETE("/servers/:id", provisionHandler.Destroy)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/users", listUsers(d.Ledger))
		admin.POST("/users/:id/balance", ledgerHandler.SetBalance)
		admin.POST("/users/:id/toggle-admin", ledgerHandler.ToggleAdmin)
		admin.GET("/users/:id/transactions", ledgerHandler.UserTransactions)
		admin.POST("/ledger/adjust", ledgerHandler.Adjust)
		admin.GET("/ledger/check", ledgerHandler.CheckConsistency)

		admin.GET("/payments", paymentHandler.List)
		admin.GET("/payments/stats", paymentHandler.Stats)
		admin.POST("/payments/:ref/settle", paymentHandler.Settle)
		if d.Simulator != nil {
			admin.POST("/simulator/pay", simulatePayment(d.Simulator))
		}
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown. The limiter janitors stop with ctx.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Run(ctx)
	go s.chatLimit.Run(ctx)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

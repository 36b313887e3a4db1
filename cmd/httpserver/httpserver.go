// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-petr/mobile-bank/internal/accountdelivery"
	"github.com/go-petr/mobile-bank/internal/accountrepo"
	"github.com/go-petr/mobile-bank/internal/accountservice"
	"github.com/go-petr/mobile-bank/internal/billerdelivery"
	"github.com/go-petr/mobile-bank/internal/billerrepo"
	"github.com/go-petr/mobile-bank/internal/billerservice"
	"github.com/go-petr/mobile-bank/internal/middleware"
	"github.com/go-petr/mobile-bank/internal/notificationdelivery"
	"github.com/go-petr/mobile-bank/internal/notifier"
	"github.com/go-petr/mobile-bank/internal/transferdelivery"
	"github.com/go-petr/mobile-bank/internal/transferrepo"
	"github.com/go-petr/mobile-bank/internal/transferservice"
	"github.com/go-petr/mobile-bank/internal/userdelivery"
	"github.com/go-petr/mobile-bank/internal/userrepo"
	"github.com/go-petr/mobile-bank/internal/userservice"
	"github.com/go-petr/mobile-bank/pkg/configpkg"
	"github.com/go-petr/mobile-bank/pkg/currencypkg"
	"github.com/go-petr/mobile-bank/pkg/tokenpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB     *sql.DB
	Engine *gin.Engine
	Config configpkg.Config

	// Hub delivers notifications to the streams connected to this instance.
	Hub *notifier.Hub
	// Bridge is set when notifications travel through Redis. Its Run must be started by the caller.
	Bridge *notifier.RedisBridge
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server serving s on addr.
// Shutting it down also ends the open notification streams.
func (s *Server) HTTPServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(s.Hub.Close)

	return srv
}

type options struct {
	redis  *redis.Client
	events notifier.MessageWriter
	mirror transferservice.Mirror
}

// Option configures optional collaborators of the server.
type Option func(*options)

// WithRedis fans notifications out through Redis Pub/Sub so every instance can deliver them.
func WithRedis(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

// WithEventWriter additionally writes every ledger event to Kafka.
func WithEventWriter(w notifier.MessageWriter) Option {
	return func(o *options) { o.events = w }
}

// WithMirror mirrors ledger movements of linked accounts to a core banking system.
func WithMirror(m transferservice.Mirror) Option {
	return func(o *options) { o.mirror = m }
}

type accountStore interface {
	accountservice.Repo
	transferservice.AccountStore
}

// New creates Server type with instantiated domains and routes.
// A nil conn keeps every store in memory.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		userRepo     userservice.Repo
		accountRepo  accountStore
		transferRepo transferservice.TransferLog
		billerRepo   billerservice.Repo
	)

	if conn == nil {
		userRepo = userrepo.NewRepoMem()
		accountRepo = accountrepo.NewRepoMem()
		transferRepo = transferrepo.NewRepoMem()
		billerRepo = billerrepo.NewRepoMem()
	} else {
		userRepo = userrepo.NewRepoPGS(conn)
		accountRepo = accountrepo.NewRepoPGS(conn)
		transferRepo = transferrepo.NewRepoPGS(conn)
		billerRepo = billerrepo.NewRepoPGS(conn)
	}

	tokenMaker, err := tokenpkg.NewMaker(config.TokenType, config.TokenSymmetricKey)
	if err != nil {
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}

	hub := notifier.NewHub(config.NotificationBuffer)

	var (
		bridge    *notifier.RedisBridge
		publisher notifier.Fanout
	)

	if o.redis != nil {
		bridge = notifier.NewRedisBridge(o.redis, config.RedisChannel, hub)
		publisher = append(publisher, bridge)
	} else {
		publisher = append(publisher, hub)
	}

	if o.events != nil {
		publisher = append(publisher, notifier.NewKafkaSink(o.events))
	}

	transferOpts := []transferservice.Option{
		transferservice.WithPublisher(publisher),
		transferservice.WithMaxAttempts(config.MaxTransferAttempts),
		transferservice.WithStoreRetry(config.StoreRetryAttempts, config.StoreRetryInterval),
	}

	if o.mirror != nil {
		transferOpts = append(transferOpts, transferservice.WithMirror(o.mirror))
	}

	accountService := accountservice.New(accountRepo)
	userService := userservice.New(userRepo, accountService, tokenMaker, config.AccessTokenDuration)
	transferService := transferservice.New(accountRepo, transferRepo, transferOpts...)
	billerService := billerservice.New(billerRepo)

	userHandler := userdelivery.NewHandler(userService)
	accountHandler := accountdelivery.NewHandler(accountService)
	transferHandler := transferdelivery.NewHandler(transferService, billerService)
	billerHandler := billerdelivery.NewHandler(billerService)
	notificationHandler := notificationdelivery.NewHandler(hub, 0)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("currency", currencypkg.ValidCurrency); err != nil {
			return nil, fmt.Errorf("cannot register currency validator: %w", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.Metrics())
	engine.Use(gin.Recovery())

	engine.GET("/health", func(gctx *gin.Context) {
		gctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/users", userHandler.Create)
	engine.POST("/users/login", userHandler.Login)

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.POST("/accounts", accountHandler.Create)
	authRoutes.GET("/accounts/me", accountHandler.Me)
	authRoutes.GET("/accounts/:id", accountHandler.Get)
	authRoutes.GET("/accounts", accountHandler.List)
	authRoutes.POST("/accounts/:id/sync", transferHandler.Sync)

	authRoutes.POST("/transfers", transferHandler.Create)
	authRoutes.GET("/transfers", transferHandler.List)
	authRoutes.POST("/deposits", transferHandler.Deposit)
	authRoutes.POST("/payments", transferHandler.Payment)

	authRoutes.POST("/billers", billerHandler.Create)
	authRoutes.GET("/billers", billerHandler.List)

	authRoutes.GET("/notifications", notificationHandler.Stream)

	server := &Server{
		DB:     conn,
		Engine: engine,
		Config: config,
		Hub:    hub,
		Bridge: bridge,
	}

	return server, nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tixledger/internal/auth"
	"tixledger/internal/cache"
	"tixledger/internal/config"
	"tixledger/internal/database"
	"tixledger/internal/external"
	"tixledger/internal/handlers"
	"tixledger/internal/logger"
	"tixledger/internal/messaging"
	"tixledger/internal/metrics"
	"tixledger/internal/middleware"
	"tixledger/internal/repository"
	"tixledger/internal/repository/memory"
	"tixledger/internal/search"
	"tixledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	es       *search.ElasticsearchClient
	registry *prometheus.Registry
	services *service.Services
	repos    *repository.Repositories
}

// NewServer создает новый экземпляр сервера
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Security.JWTSecret == "" || cfg.Security.WebhookSecret == "" {
		return nil, errors.New("JWT_SECRET and WEBHOOK_SECRET must be set")
	}

	// Устанавливаем режим Gin
	gin.SetMode(cfg.GinMode)

	s := &Server{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := s.connect(); err != nil {
		s.Cleanup()
		return nil, err
	}

	opts := service.Options{
		Metrics:  metrics.New(s.registry),
		Fees: service.Fees{
			Platform:   cfg.Fees.Platform,
			Blockchain: cfg.Fees.Blockchain,
		},
		QRSecret: cfg.Security.QRSecret,
	}
	// Optional collaborators stay nil interfaces when their backend is off
	if s.nats != nil {
		opts.Publisher = s.nats
	}
	if s.valkey != nil {
		opts.Cache = s.valkey
	}
	if s.es != nil {
		opts.Audit = s.es
	}
	if cfg.Payment.BaseURL != "" {
		opts.Provider = external.NewPaymentClient(cfg.Payment)
	} else {
		logger.Get().Warn("PROVIDER_BASE_URL is not set, server-side approve and complete calls are skipped")
	}
	if cfg.Minter.BaseURL != "" {
		opts.Minter = external.NewMinterClient(cfg.Minter)
	}
	s.services = service.NewServices(s.repos, opts)

	// Создаем роутер
	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	s.setupRoutes()

	return s, nil
}

// connect открывает хранилище и опциональные бэкенды
func (s *Server) connect() error {
	cfg := s.config

	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Get().Warn("Using in-memory storage, state is lost on restart")
		s.repos = memory.NewRepositories()
	case config.StoragePostgres:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		if err := db.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		s.repos = repository.NewRepositories(db)
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.NATSEnabled {
		natsClient, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		s.nats = natsClient
	}

	// Кэш и аудит не критичны: без них сервис работает
	if cfg.ValkeyEnabled {
		valkeyClient, err := cache.NewValkeyClient(cfg.Valkey)
		if err != nil {
			logger.Get().Warn("Valkey unavailable, purchase status cache disabled", "error", err)
		} else {
			s.valkey = valkeyClient
		}
	}
	if cfg.Elasticsearch.Enabled {
		esClient, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			logger.Get().Warn("Elasticsearch unavailable, reconciliation audit disabled", "error", err)
		} else {
			s.es = esClient
		}
	}

	return nil
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	var audit handlers.AuditSearcher
	if s.es != nil {
		audit = s.es
	}
	h := handlers.NewHandlers(s.services, audit)
	h.Register(s.router, auth.NewJWTService(s.config.Security.JWTSecret, s.config.Security.JWTExpiry), s.config.Security.WebhookSecret)

	// Health check endpoint
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	response := gin.H{
		"status":  "ok",
		"service": "tixledger-api",
		"version": "1.0.0",
		"storage": s.config.StorageDriver,
	}

	if s.db != nil {
		hc := s.db.HealthCheck(c.Request.Context())
		response["database"] = hc
		if hc.Status != "healthy" {
			response["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
	}

	if s.es != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.es.HealthCheck(ctx); err != nil {
			response["elasticsearch"] = err.Error()
		} else {
			response["elasticsearch"] = "healthy"
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Services возвращает сервисы для фоновых задач
func (s *Server) Services() *service.Services {
	return s.services
}

// Cleanup закрывает соединения
func (s *Server) Cleanup() error {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			logger.Get().Error("Error closing NATS connection", "error", err)
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			logger.Get().Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logger.Get().Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}

package consumers

import (
	"context"
	"fmt"

	"tixledger/internal/config"
	"tixledger/internal/database"
	"tixledger/internal/external"
	"tixledger/internal/logger"
	"tixledger/internal/messaging"
	"tixledger/internal/metrics"
	"tixledger/internal/models"
	"tixledger/internal/repository"
	"tixledger/internal/service"

	"github.com/nats-io/stan.go"
	"github.com/prometheus/client_golang/prometheus"
)

const queueGroup = "consumers"

// queueSubscriber is the part of the NATS client the consumers depend on
type queueSubscriber interface {
	SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error)
	Close() error
}

type ConsumerService struct {
	db       *database.DB
	nats     queueSubscriber
	repos    *repository.Repositories
	services *service.Services
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Connect to NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, err
	}

	repos := repository.NewRepositories(db)

	opts := service.Options{
		Publisher: natsClient,
		Metrics:   metrics.New(prometheus.DefaultRegisterer),
		Fees: service.Fees{
			Platform:   cfg.Fees.Platform,
			Blockchain: cfg.Fees.Blockchain,
		},
		QRSecret: cfg.Security.QRSecret,
	}
	if cfg.Payment.BaseURL != "" {
		opts.Provider = external.NewPaymentClient(cfg.Payment)
	}
	if cfg.Minter.BaseURL != "" {
		opts.Minter = external.NewMinterClient(cfg.Minter)
	}
	services := service.NewServices(repos, opts)

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		repos:    repos,
		services: services,
		handlers: NewHandlers(services.Tickets, cfg.Sweep.MaxIssueAttempt),
	}, nil
}

// DB exposes the connection for the background jobs
func (cs *ConsumerService) DB() *database.DB {
	return cs.db
}

func (cs *ConsumerService) Services() *service.Services {
	return cs.services
}

func (cs *ConsumerService) Start() error {
	logger.Get().Info("Starting NATS consumers...")

	if _, err := cs.nats.SubscribeQueue(models.EventTicketIssueRequested, queueGroup, cs.handlers.HandleTicketIssueRequested); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", models.EventTicketIssueRequested, err)
	}
	if _, err := cs.nats.SubscribeQueue(models.EventPaymentMismatch, queueGroup, cs.handlers.HandlePaymentMismatch); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", models.EventPaymentMismatch, err)
	}

	logger.Get().Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	logger.Get().Info("Shutting down consumer service...")

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			logger.Get().Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			logger.Get().Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}

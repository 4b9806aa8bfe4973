// Package app wires the service graph from configuration.
package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"settlement-backend/internal/clients"
	"settlement-backend/internal/config"
	"settlement-backend/internal/db"
	"settlement-backend/internal/events"
	"settlement-backend/internal/handlers"
	"settlement-backend/internal/ledger"
	"settlement-backend/internal/repository"
	"settlement-backend/internal/router"
	"settlement-backend/internal/services"
	"settlement-backend/internal/utils"
)

// ServiceContainer holds the wired application.
type ServiceContainer struct {
	Config      *config.Config
	Ledger      *ledger.Ledger
	Publisher   events.Publisher
	Coordinator *services.SettlementCoordinator
	Cleanup     *services.CleanupService
	Router      *gin.Engine
	Requests    repository.RequestRepository
}

// Build assembles every component from the loaded configuration.
func Build(cfg *config.Config) (*ServiceContainer, error) {
	var (
		requests     repository.RequestRepository
		participants repository.ParticipantRepository
		assets       repository.AssetRepository
	)
	if cfg.Database.DSN != "" {
		if err := db.Init(cfg.Database.DSN); err != nil {
			return nil, err
		}
		requests = repository.NewRequestRepository(db.DB)
		participants = repository.NewParticipantRepository(db.DB)
		assets = repository.NewAssetRepository(db.DB)
	} else {
		logrus.Warn("no database configured, using in-memory repositories")
		requests = repository.NewMemoryRequestRepository()
		participants = repository.NewMemoryParticipantRepository()
		assets = repository.NewMemoryAssetRepository()
	}

	var publisher events.Publisher
	if cfg.NATS.URL != "" {
		p, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		publisher = p
	} else {
		logrus.Warn("no NATS configured, events recorded in memory only")
		publisher = events.NewMemoryPublisher()
	}

	var oracle clients.ExecutionOracleClient
	if cfg.Oracle.Stub {
		logrus.Warn("using stub execution oracle")
		oracle = clients.NewStubOracleClient()
	} else {
		broker := clients.NewBrokerOracleClient(cfg.Oracle.BaseURL, cfg.Oracle.AuthToken)
		if err := broker.TestConnection(); err != nil {
			logrus.WithError(err).Warn("execution oracle unreachable at startup")
		}
		oracle = broker
	}

	params, err := settlementParams(&cfg.Settlement)
	if err != nil {
		return nil, err
	}

	book := ledger.New()
	dispatcher := services.NewAssetDispatcher(oracle)
	logic := services.NewLogicHandle(services.ExecutionLogic{
		Version:       "v1",
		SlippageMinBP: cfg.Settlement.SlippageMinBP,
		SlippageMaxBP: cfg.Settlement.SlippageMaxBP,
	})

	coordinator := services.NewSettlementCoordinator(services.SettlementCoordinatorDeps{
		Params:       params,
		Owner:        cfg.Settlement.Owner,
		Participants: participants,
		Requests:     requests,
		Assets:       assets,
		Ledger:       book,
		Dispatcher:   dispatcher,
		Publisher:    publisher,
		Logic:        logic,
	})
	if err := coordinator.RestoreAssets(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to restore assets: %w", err)
	}

	cleanup := services.NewCleanupService(coordinator, cfg.Settlement.CleanupIntervalDuration())

	engine := router.New(cfg, router.Handlers{
		Auth:           handlers.NewAuthHandler(),
		AdminAuth:      handlers.NewAdminAuthHandler(),
		Settlement:     handlers.NewSettlementHandler(coordinator, requests, book),
		Admin:          handlers.NewAdminHandler(coordinator, book, cfg.Settlement.Owner),
		OracleCallback: handlers.NewOracleCallbackHandler(dispatcher),
	}, logrus.StandardLogger())

	return &ServiceContainer{
		Config:      cfg,
		Ledger:      book,
		Publisher:   publisher,
		Coordinator: coordinator,
		Cleanup:     cleanup,
		Router:      engine,
		Requests:    requests,
	}, nil
}

func settlementParams(sc *config.SettlementConfig) (services.SettlementParams, error) {
	minAmount, err := utils.ParseAmount(sc.MinAmount)
	if err != nil {
		return services.SettlementParams{}, fmt.Errorf("invalid min_amount: %w", err)
	}
	var maxAmount *big.Int
	if sc.MaxAmount != "" {
		maxAmount, err = utils.ParseAmount(sc.MaxAmount)
		if err != nil {
			return services.SettlementParams{}, fmt.Errorf("invalid max_amount: %w", err)
		}
	}
	return services.SettlementParams{
		BaseCurrency:        sc.BaseCurrency,
		RequestTimeout:      sc.RequestTimeoutDuration(),
		MinAmount:           minAmount,
		MaxAmount:           maxAmount,
		RequestCooldown:     sc.RequestCooldownDuration(),
		MaxCleanupBatchSize: sc.MaxCleanupBatchSize,
	}, nil
}

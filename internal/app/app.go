// Package app wires configuration, storage, clients and services together.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tickwatch/tickwatch/internal/clients/tencent"
	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/services/alert"
	"github.com/tickwatch/tickwatch/internal/services/indicator"
	"github.com/tickwatch/tickwatch/internal/services/ledger"
	"github.com/tickwatch/tickwatch/internal/services/marketdata"
	"github.com/tickwatch/tickwatch/internal/storage"
)

// App holds all initialized services and clients. It is the shared core
// behind cmd/tickwatch-server.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	MarketData  interfaces.MarketDataService
	Indicators  interfaces.IndicatorService
	Ledger      interfaces.LedgerService
	Alerts      interfaces.AlertService
	StartupTime time.Time

	redisClient *redis.Client
	scanCancel  context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	// Config resolution: explicit path, TICKWATCH_CONFIG, binary dir, then
	// the development fallback
	if configPath == "" {
		configPath = os.Getenv("TICKWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "tickwatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tickwatch.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage path to binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var redisClient *redis.Client
	if config.Cache.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Cache.Addr,
			Password: config.Cache.Password,
			DB:       config.Cache.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", config.Cache.Addr).Msg("Redis unreachable, running without cache tier")
			redisClient.Close()
			redisClient = nil
		}
	} else {
		logger.Info().Msg("No cache address configured, running without cache tier")
	}

	marketClient := tencent.NewClient(
		tencent.WithQuoteBaseURL(config.Provider.QuoteBaseURL),
		tencent.WithHistoryBaseURL(config.Provider.HistoryBaseURL),
		tencent.WithRateLimit(config.Provider.RateLimit),
		tencent.WithTimeout(config.Provider.GetTimeout()),
		tencent.WithRetries(config.Provider.Retries),
		tencent.WithLogger(logger),
	)

	marketData := marketdata.NewService(marketClient, redisClient, logger, &config.Cache)
	indicators := indicator.NewService(marketData, logger, config.Cache.GetSignalTTL())
	portfolioStore := storageManager.PortfolioStore()
	ledgerService := ledger.NewService(portfolioStore, marketData, indicators, logger)
	alertService := alert.NewService(portfolioStore, marketData, indicators, logger)

	return &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		MarketData:  marketData,
		Indicators:  indicators,
		Ledger:      ledgerService,
		Alerts:      alertService,
		StartupTime: time.Now(),
		redisClient: redisClient,
	}, nil
}

// StartAlertScheduler runs the alert scan loop in the background until the
// app closes. No-op when disabled in config.
func (a *App) StartAlertScheduler() {
	if !a.Config.Alerts.Enabled {
		a.Logger.Info().Msg("Alert scheduler disabled")
		return
	}

	interval := a.Config.Alerts.GetScanInterval()
	ctx, cancel := context.WithCancel(context.Background())
	a.scanCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.Logger.Info().Dur("interval", interval).Msg("Alert scheduler started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				alerts, err := a.Alerts.Scan(ctx)
				if err != nil {
					a.Logger.Error().Err(err).Msg("Alert scan failed")
					continue
				}
				for _, al := range alerts {
					a.Logger.Info().
						Str("symbol", al.Symbol).
						Str("type", string(al.AlertType)).
						Msg(al.Message)
				}
			}
		}
	}()
}

// Close releases all resources.
func (a *App) Close() {
	if a.scanCancel != nil {
		a.scanCancel()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Redis close failed")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/db"
	adminHttp "github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/transport"
)

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "admin-service").Logger()
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().
		Str("timezone", cfg.App.Timezone).
		Str("tax_rate", cfg.Orders.TaxRate.String()).
		Bool("auth_enabled", cfg.Auth.Enabled()).
		Msg("Admin service starting...")

	if cfg.Postgres.AutoMigrate {
		if err := db.Migrate(cfg.Postgres); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	ctx := context.Background()
	dbPool, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	orderRepository := order.NewRepository(dbPool.Pool)
	orderSvc := order.NewService(orderRepository,
		order.WithTaxRate(cfg.Orders.TaxRate),
		order.WithLocation(cfg.App.Location()),
	)

	catalogRepository := catalog.NewRepository(dbPool.Pool)
	catalogSvc := catalog.NewService(catalogRepository)

	router := transport.NewRouter(*cfg,
		adminHttp.NewOrderHandler(orderSvc),
		adminHttp.NewCatalogHandler(catalogSvc),
	)
	server := transport.NewServer(cfg.App, router)

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Admin service stopped gracefully")
}

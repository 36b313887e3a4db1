// Package main runs the mobile bank ledger API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-petr/mobile-bank/cmd/httpserver"
	"github.com/go-petr/mobile-bank/internal/corebanking"
	"github.com/go-petr/mobile-bank/internal/middleware"
	"github.com/go-petr/mobile-bank/internal/notifier"
	"github.com/go-petr/mobile-bank/pkg/configpkg"
	"github.com/go-petr/mobile-bank/pkg/dbpkg"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *sql.DB

	if config.DBDriver != "memory" {
		if config.MigrationURL != "" {
			if err := dbpkg.Migrate(config.MigrationURL, config.DBSource); err != nil {
				logger.Fatal().Err(err).Msg("cannot migrate database")
			}

			logger.Info().Msg("database migrated")
		}

		db, err = dbpkg.Setup(config.DBDriver, config.DBSource)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot connect to database")
		}

		defer db.Close()
	} else {
		logger.Warn().Msg("running on in-memory stores, nothing is persisted")
	}

	var opts []httpserver.Option

	if config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr, Password: config.RedisPassword})
		defer rdb.Close()

		opts = append(opts, httpserver.WithRedis(rdb))
	}

	if brokers := config.Brokers(); len(brokers) > 0 {
		w := notifier.NewKafkaWriter(brokers, config.KafkaTopic, logger)
		defer w.Close()

		opts = append(opts, httpserver.WithEventWriter(w))
	}

	if config.CoreBankingURL != "" {
		opts = append(opts, httpserver.WithMirror(corebanking.New(corebanking.Config{
			BaseURL:  config.CoreBankingURL,
			Tenant:   config.CoreBankingTenant,
			Username: config.CoreBankingUsername,
			Password: config.CoreBankingPassword,
			Timeout:  config.CoreBankingTimeout,
		})))
	}

	server, err := httpserver.New(db, logger, config, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	httpServer := server.HTTPServer(config.ServerAddress)

	g, gctx := errgroup.WithContext(ctx)

	if server.Bridge != nil {
		bridgeCtx := logger.WithContext(gctx)

		g.Go(func() error {
			return server.Bridge.Run(bridgeCtx)
		})
	}

	g.Go(func() error {
		logger.Info().Str("address", config.ServerAddress).Msg("BANK API SERVER HAS STARTED")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logger.Info().Msg("shutting down")

		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}

// @title        DBMS Portal Auth API
// @version      1.0
// @description  Session and credential lifecycle for the student, department and company portal.
// @BasePath     /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyySpace/DBMS-FinalProj/internal/api"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/service"
	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/config"
	mongostore "github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/mongo"
	pgstore "github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/postgres"
	redisstore "github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/redis"
	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/http/handlers"
	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/token"
	"github.com/lyySpace/DBMS-FinalProj/pkg/logger"
)

const (
	serviceName     = "portal-auth"
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: serviceName,
		Env:     cfg.Env,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	users, closeUsers, err := openCredentialStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeUsers()

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()
	sessions := redisstore.NewSessionStore(rdb)

	codec, err := token.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}

	manager := service.NewSessionManager(
		users,
		sessions,
		codec,
		service.NewLoginThrottler(sessions, cfg.Auth.MaxFailures, cfg.Auth.LockoutWindow),
		service.SessionConfig{
			AccessTTL:   cfg.Auth.AccessTTL,
			RefreshTTL:  cfg.Auth.RefreshTTL,
			MultiDevice: cfg.Auth.MultiDevice,
			BcryptCost:  cfg.Auth.BcryptCost,
		},
		logger.Component("session_manager"),
	)

	e := api.NewRouter(api.Dependencies{
		Sessions: manager,
		Readiness: []handlers.Dependency{
			{Name: cfg.CredentialBackend, Pinger: users},
			{Name: "redis", Pinger: sessions},
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("backend", cfg.CredentialBackend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("http server stopped")
	return nil
}

func openCredentialStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.CredentialStore, func(), error) {
	switch cfg.CredentialBackend {
	case config.BackendMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewCredentialStore(client, db)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return store, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		}, nil

	default:
		pool, err := pgstore.Connect(ctx, pgstore.Config{URL: cfg.Postgres.URL})
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewCredentialStore(pool), pool.Close, nil
	}
}

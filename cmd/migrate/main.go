// migrate applies or rolls back the embedded credential store schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/config"
	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/postgres"
	"github.com/lyySpace/DBMS-FinalProj/pkg/logger"
)

const serviceName = "portal-migrate"

var errNotPostgres = errors.New("migrations only apply to the postgres backend")

func parseDirection(args []string, output io.Writer) (string, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(output)
	direction := fs.String("direction", "up", "Migration direction: up or down")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *direction != "up" && *direction != "down" {
		return "", fmt.Errorf("direction must be up or down, got %q", *direction)
	}
	return *direction, nil
}

func checkBackend(cfg *config.Config) error {
	if cfg.CredentialBackend != config.BackendPostgres {
		return fmt.Errorf("%w (CREDENTIAL_BACKEND=%s)", errNotPostgres, cfg.CredentialBackend)
	}
	return nil
}

func main() {
	direction, err := parseDirection(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log := logger.Init(logger.Options{Service: serviceName})
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	cfg, err := config.LoadStores(context.Background())
	if err != nil {
		log := logger.Init(logger.Options{Service: serviceName})
		log.Fatal().Err(err).Msg("load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: serviceName,
		Env:     cfg.Env,
	})

	if err := checkBackend(cfg); err != nil {
		log.Fatal().Err(err).Msg("unsupported backend")
	}

	if err := postgres.Migrate(cfg.Postgres.URL, direction); err != nil {
		log.Fatal().Err(err).Str("direction", direction).Msg("migrate")
	}
	log.Info().Str("direction", direction).Msg("schema migrated")
}

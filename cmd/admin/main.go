// admin grants or revokes the admin flag of an identity.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/config"
	mongostore "github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/mongo"
	pgstore "github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/postgres"
	"github.com/lyySpace/DBMS-FinalProj/pkg/logger"
)

const serviceName = "portal-admin"

type options struct {
	userID string
	admin  bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(output)
	userID := fs.String("user", "", "Identity id to update")
	revoke := fs.Bool("revoke", false, "Clear the admin flag instead of setting it")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *userID == "" {
		return options{}, errors.New("-user is required")
	}
	return options{userID: *userID, admin: !*revoke}, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log := logger.Init(logger.Options{Service: serviceName})
		log.Fatal().Err(err).Msg("invalid arguments")
	}

	ctx := context.Background()
	cfg, err := config.LoadStores(ctx)
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

	if err := setAdmin(ctx, cfg, log, opts); err != nil {
		log.Fatal().Err(err).Str("user_id", opts.userID).Msg("update admin flag")
	}
	log.Info().Str("user_id", opts.userID).Bool("is_admin", opts.admin).Msg("admin flag updated")
}

func setAdmin(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts options) error {
	var store ports.CredentialStore

	switch cfg.CredentialBackend {
	case config.BackendMongo:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		}()
		store = mongostore.NewCredentialStore(client, db)
	default:
		pool, err := pgstore.Connect(ctx, pgstore.Config{URL: cfg.Postgres.URL})
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewCredentialStore(pool)
	}

	return store.SetAdmin(ctx, opts.userID, opts.admin)
}

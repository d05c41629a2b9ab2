package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/hongminglow/contacts-be/internal/config"
	"github.com/hongminglow/contacts-be/internal/logging"
	"github.com/hongminglow/contacts-be/internal/server"
	"github.com/hongminglow/contacts-be/internal/storage"
	"github.com/hongminglow/contacts-be/internal/storage/memory"
	mongostore "github.com/hongminglow/contacts-be/internal/storage/mongo"
)

const (
	portFlag  = "port"
	dbURIFlag = "db-uri"
	storeFlag = "store"
)

func main() {
	loadLocalEnv()

	app := cli.NewApp()
	app.Name = "contacts-be"
	app.Usage = "users and contacts REST API"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: portFlag, EnvVar: "PORT", Usage: "HTTP listen port"},
		cli.StringFlag{Name: dbURIFlag, EnvVar: "DB_URI", Usage: "MongoDB connection URI"},
		cli.StringFlag{Name: storeFlag, EnvVar: "STORE_BACKEND", Usage: "document store backend (mongo or memory)"},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("contacts-be exited")
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if v := c.String(portFlag); v != "" {
		cfg.Port = v
	}
	if v := c.String(dbURIFlag); v != "" {
		cfg.DatabaseURI = v
	}
	if v := c.String(storeFlag); v != "" {
		cfg.StoreBackend = v
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid flags")
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	zerolog.DefaultContextLogger = &logger

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := openStore(ctx, cfg)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("closing store")
		}
	}()

	srv, err := server.New(ctx, cfg, store, logger)
	cancel()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr()).Str("store", cfg.StoreBackend).Msg("contacts-be listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.DocumentStore, error) {
	if cfg.StoreBackend == config.StoreMemory {
		return memory.NewStore(), nil
	}
	store, err := mongostore.NewStore(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, errors.Wrap(err, "init database")
	}
	return store, nil
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found; relying on existing environment")
	}
}

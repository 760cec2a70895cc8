package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-oidc-server/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	shutdownTimeout     = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
	housekeepingEvery   = time.Minute
	configFileFlag      = "config"
	portFlag            = "port"
	logLevelFlag        = "log-level"
	storageBackendFlag  = "storage-backend"
	clientStoreFlag     = "client-store"
	viperPortKey        = "port"
	viperLogLevelKey    = "log_level"
	viperStorageKey     = "storage_backend"
	viperClientStoreKey = "client_store"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "oidc-server",
		Short:         "OpenID Connect provider",
		Long:          "Runs an OAuth 2.0 authorization server and OpenID Connect provider with dynamic client registration and RP-initiated logout.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString(configFileFlag)
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String(configFileFlag, "", "path to a config file (yaml, json or toml)")
	cmd.Flags().String(portFlag, "", "port to listen on")
	cmd.Flags().String(logLevelFlag, "", "log level (debug, info, warn, error)")
	cmd.Flags().String(storageBackendFlag, "", "where tokens, sessions and codes live: memory or redis")
	cmd.Flags().String(clientStoreFlag, "", "where registered clients live: memory or bolt")

	bindings := map[string]string{
		viperPortKey:        portFlag,
		viperLogLevelKey:    logLevelFlag,
		viperStorageKey:     storageBackendFlag,
		viperClientStoreKey: clientStoreFlag,
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			log.Fatal().Err(err).Str("flag", flag).Msg("failed to bind flag")
		}
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	configureLogging(cfg)
	displayAppname(cfg.GetAppName())

	app, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go app.housekeeping(ctx, housekeepingEvery)

	server := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           app.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(server)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func configureLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if strings.EqualFold(cfg.GetEnv(), "DEV") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

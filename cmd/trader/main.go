package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	polymarket "github.com/GoPolymarket/polymarket-go-sdk"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"

	"github.com/garveslabs/polymarket-trader/internal/app"
	"github.com/garveslabs/polymarket-trader/internal/config"
	"github.com/garveslabs/polymarket-trader/internal/logging"
	"github.com/garveslabs/polymarket-trader/internal/metrics"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	logging.Init(cfg.LogLevel, "console")
	log := logging.L()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if cfg.PrivateKey == "" || cfg.APIKey == "" {
		log.Fatal().Msg("POLYMARKET_PK and POLYMARKET_API_KEY are required")
	}

	log.Info().Bool("dry_run", cfg.DryRun).Str("mode", cfg.TradingMode).Msg("polymarket-trader starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}

	signer, err := auth.NewPrivateKeySigner(strings.TrimSpace(cfg.PrivateKey), 137)
	if err != nil {
		log.Fatal().Err(err).Msg("signer")
	}

	apiKey := &auth.APIKey{
		Key:        strings.TrimSpace(cfg.APIKey),
		Secret:     strings.TrimSpace(cfg.APISecret),
		Passphrase: strings.TrimSpace(cfg.APIPassphrase),
	}

	sdkClient := polymarket.NewClient()
	clobClient := sdkClient.CLOB.WithAuth(signer, apiKey)

	if cfg.BuilderKey != "" && cfg.BuilderSecret != "" {
		clobClient = clobClient.WithBuilderConfig(&auth.BuilderConfig{
			Local: &auth.BuilderCredentials{
				Key:        strings.TrimSpace(cfg.BuilderKey),
				Secret:     strings.TrimSpace(cfg.BuilderSecret),
				Passphrase: strings.TrimSpace(cfg.BuilderPassphrase),
			},
		})
		log.Info().Msg("builder attribution enabled")
	}

	wsClient := sdkClient.CLOBWS.Authenticate(signer, apiKey)
	dataClient := sdkClient.Data

	trader := app.New(cfg, clobClient, wsClient, signer, dataClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.API.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.API.Addr); err != nil && err != context.Canceled {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	runErr := trader.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	trader.Shutdown(shutdownCtx)

	if runErr != nil && runErr != context.Canceled {
		log.Fatal().Err(runErr).Msg("trading loop exited with error")
	}
}

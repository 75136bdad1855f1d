package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CoolE88/water-telemetry/internal/config"
	apphttp "github.com/CoolE88/water-telemetry/internal/http"
	applogger "github.com/CoolE88/water-telemetry/internal/logger"
	"github.com/CoolE88/water-telemetry/internal/telemetry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	logger, err := applogger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Error during logger sync: %v", err)
		}
	}()

	feedCfg := telemetry.Config{
		Mode:              telemetry.ModeAuto,
		Endpoint:          telemetry.EndpointFromBase(cfg.Feed.APIBase),
		SynthesisInterval: time.Duration(cfg.Feed.SynthesisInterval) * time.Millisecond,
	}
	if cfg.Feed.UseMock {
		feedCfg.Mode = telemetry.ModeForcedSynthetic
	}

	acquirer := telemetry.NewAcquirer(telemetry.NewWebSocketDialer(), logger)
	session := acquirer.Start(ctx, feedCfg)
	defer session.Stop()

	logger.Info("Starting telemetry portal", zap.String("session_id", session.ID().String()))

	feedServer := apphttp.NewFeedServer(cfg.PortalPort, session, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := feedServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Журнал смены источника данных
	g.Go(func() error {
		var last telemetry.Origin
		for {
			select {
			case <-gctx.Done():
				return nil
			case batch, ok := <-session.Updates():
				if !ok {
					return nil
				}
				if batch.Origin != last {
					logger.Info("Telemetry feed origin changed",
						zap.String("origin", string(batch.Origin)),
						zap.Int("snapshots", len(batch.Snapshots)),
					)
					last = batch.Origin
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		session.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := feedServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Portal failed", zap.Error(err))
	}

	logger.Info("Telemetry portal stopped")
}

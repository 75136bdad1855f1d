package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CoolE88/water-telemetry/internal/config"
	"github.com/CoolE88/water-telemetry/internal/domain"
	appgrpc "github.com/CoolE88/water-telemetry/internal/grpc"
	apphttp "github.com/CoolE88/water-telemetry/internal/http"
	"github.com/CoolE88/water-telemetry/internal/ingest"
	applogger "github.com/CoolE88/water-telemetry/internal/logger"
	"github.com/CoolE88/water-telemetry/internal/repository/memory"
	"github.com/CoolE88/water-telemetry/internal/repository/postgres"
	"github.com/CoolE88/water-telemetry/internal/service"
	"github.com/CoolE88/water-telemetry/internal/stream"
	"github.com/CoolE88/water-telemetry/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	healthInterval  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
	memoryCapacity  = 1000
)

type repository interface {
	service.Repository
	Close()
}

func main() {
	// Контекст приложения отменяется по SIGINT/SIGTERM
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

	logger.Info("Starting Water Telemetry Service", zap.String("version", "1.0.0"))

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage", zap.Error(err))
		return
	}
	defer func() {
		repo.Close()
		logger.Info("Storage closed")
	}()

	telemetryService := service.NewTelemetryService(repo, logger)

	hub := stream.NewHub(telemetryService,
		time.Duration(cfg.StreamInterval)*time.Millisecond, cfg.HistoryLimit, logger)
	httpServer := apphttp.NewHTTPServer(cfg.RESTPort, telemetryService, hub, logger)
	grpcServer := appgrpc.NewGRPCServer(telemetryService, logger)

	readings := make(chan *domain.TelemetryReading, 1000)
	ingestor := ingest.NewIngestor(telemetryService, cfg.WorkerCount, logger)
	ingestor.Start(ctx, readings)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return grpcServer.Start(cfg.GRPCPort)
	})

	g.Go(func() error {
		grpcServer.WatchHealth(gctx, healthInterval)
		return nil
	})

	g.Go(func() error {
		generateReadings(gctx, readings, time.Duration(cfg.DataInterval)*time.Millisecond, logger)
		return nil
	})

	// Остановка по сигналу или по падению любого из серверов
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("Telemetry stream clients did not finish in time", zap.Error(err))
		}
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("gRPC server shutdown due to timeout")
			} else {
				logger.Error("gRPC server shutdown failed", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", zap.Error(err))
	}

	ingestor.Stop()
	ingestor.Wait()

	logger.Info("Water Telemetry Service stopped")
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository, error) {
	if cfg.DBConfig.DBSource == "" {
		logger.Info("DB_SOURCE is empty, using in-memory storage with seed readings")
		return memory.NewSeededRepository(memoryCapacity, logger), nil
	}

	repo, err := postgres.NewPostgresRepository(ctx, cfg.DBConfig, logger)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}

	logger.Info("Database connection established")
	return repo, nil
}

// generateReadings имитирует датчики сети: значения колеблются вокруг последнего посевного показания
func generateReadings(ctx context.Context, out chan<- *domain.TelemetryReading, interval time.Duration, logger *zap.Logger) {
	defer close(out)

	seeds := memory.SeedReadings()
	base := seeds[len(seeds)-1]
	r := utils.NewRand(0)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Starting reading generation", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping reading generation due to context cancellation")
			return
		case <-ticker.C:
			reading := sensorReading(r, base)
			select {
			case out <- reading:
				logger.Debug("Generated new reading", zap.String("reading_id", reading.ID.String()))
			default:
				logger.Warn("Reading channel full, dropping reading")
			}
		}
	}
}

func sensorReading(r *rand.Rand, base domain.TelemetryReading) *domain.TelemetryReading {
	return &domain.TelemetryReading{
		ID:             utils.NewUUID(),
		ZoneID:         "zone-central",
		RecordedAt:     time.Now().UTC(),
		FlowML:         utils.Jitter(r, base.FlowML, 3),
		PressurePSI:    utils.Jitter(r, base.PressurePSI, 2),
		EnergyKW:       utils.Jitter(r, base.EnergyKW, 60),
		IncidentsToday: base.IncidentsToday + utils.RandomInt(r, 0, 1),
	}
}

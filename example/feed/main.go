package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/CoolE88/water-telemetry/internal/telemetry"

	"go.uber.org/zap"
)

func main() {
	base := flag.String("api", "http://127.0.0.1:8000/api", "base address of the telemetry API")
	mock := flag.Bool("mock", false, "use synthetic snapshots only")
	interval := flag.Duration("interval", telemetry.DefaultSynthesisInterval, "synthetic snapshot interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := telemetry.Config{
		Mode:              telemetry.ModeAuto,
		Endpoint:          telemetry.EndpointFromBase(*base),
		SynthesisInterval: *interval,
	}
	if *mock {
		cfg.Mode = telemetry.ModeForcedSynthetic
	}

	session := telemetry.NewAcquirer(telemetry.NewWebSocketDialer(), logger).Start(ctx, cfg)
	defer session.Stop()

	fmt.Printf("=== Session %s (%s) ===\n", session.ID(), cfg.Endpoint)

	for batch := range session.Updates() {
		current, ok := batch.Current()
		if !ok {
			fmt.Printf("[%s] %s: empty set\n", batch.ProducedAt.Format(time.TimeOnly), batch.Origin)
			continue
		}
		fmt.Printf("[%s] %s: %d snapshot(s), flow=%.1f mL pressure=%.1f psi energy=%.1f kW incidents=%d\n",
			batch.ProducedAt.Format(time.TimeOnly), batch.Origin, len(batch.Snapshots),
			current.TotalFlowMl, current.PressurePsi, current.EnergyConsumptionKw, current.IncidentsToday)
	}

	fmt.Println("Session stopped")
}

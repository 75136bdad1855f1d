package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CoolE88/water-telemetry/internal/config"
	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema таблица показаний; zone_id пустой для общегородских показаний
const Schema = `
CREATE TABLE IF NOT EXISTS telemetry_readings (
	id              UUID PRIMARY KEY,
	zone_id         TEXT NOT NULL DEFAULT '',
	recorded_at     TIMESTAMPTZ NOT NULL,
	flow_ml         DOUBLE PRECISION NOT NULL CHECK (flow_ml >= 0),
	pressure_psi    DOUBLE PRECISION NOT NULL CHECK (pressure_psi >= 0),
	energy_kw       DOUBLE PRECISION NOT NULL CHECK (energy_kw >= 0),
	incidents_today INTEGER NOT NULL CHECK (incidents_today >= 0)
);
CREATE INDEX IF NOT EXISTS telemetry_readings_recorded_at_idx ON telemetry_readings (recorded_at DESC);
`

type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRepository(ctx context.Context, dbConfig config.DBConfig, logger *zap.Logger) (*PostgresRepository, error) {
	// Конфигурация пула
	config, err := pgxpool.ParseConfig(dbConfig.DBSource)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = int32(dbConfig.MaxDBConnections)
	config.MinConns = int32(dbConfig.MinDBConnections)
	config.MaxConnLifetime = dbConfig.MaxConnLifetime
	config.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	go monitorConnections(ctx, pool, logger)

	return &PostgresRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// monitorConnections периодически обновляет метрики соединений и завершается при отмене ctx
func monitorConnections(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping monitorConnections goroutine due to context cancellation")
			return
		case <-ticker.C:
			stats := pool.Stat()
			metrics.DBActiveConnections.Set(float64(stats.AcquiredConns()))
			metrics.DBIdleConnections.Set(float64(stats.IdleConns()))

			logger.Debug("Database connection stats",
				zap.Int("acquired", int(stats.AcquiredConns())),
				zap.Int("idle", int(stats.IdleConns())),
				zap.Int("max", int(stats.MaxConns())),
			)
		}
	}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("ensure_schema").Observe(time.Since(start).Seconds())
	}()

	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveReading(ctx context.Context, reading *domain.TelemetryReading) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("save_reading").Observe(time.Since(start).Seconds())
	}()

	query := "INSERT INTO telemetry_readings (id, zone_id, recorded_at, flow_ml, pressure_psi, energy_kw, incidents_today) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING RETURNING id"

	var insertedID uuid.UUID
	err := r.pool.QueryRow(ctx, query,
		reading.ID,
		reading.ZoneID,
		reading.RecordedAt,
		reading.FlowML,
		reading.PressurePSI,
		reading.EnergyKW,
		reading.IncidentsToday,
	).Scan(&insertedID)

	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to save reading: %w", err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug("duplicate reading ignored", zap.String("reading_id", reading.ID.String()))
	}

	return nil
}

// LatestReadings возвращает не более limit последних показаний, самое свежее последним
func (r *PostgresRepository) LatestReadings(ctx context.Context, limit int) ([]domain.TelemetryReading, error) {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("latest_readings").Observe(time.Since(start).Seconds())
	}()

	query := "SELECT id, zone_id, recorded_at, flow_ml, pressure_psi, energy_kw, incidents_today FROM telemetry_readings ORDER BY recorded_at DESC LIMIT $1"

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var results []domain.TelemetryReading
	for rows.Next() {
		var reading domain.TelemetryReading
		err := rows.Scan(
			&reading.ID,
			&reading.ZoneID,
			&reading.RecordedAt,
			&reading.FlowML,
			&reading.PressurePSI,
			&reading.EnergyKW,
			&reading.IncidentsToday,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	// из базы пришли от новых к старым
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}

	return results, nil
}

func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		metrics.DBQueryDuration.WithLabelValues("health_check").Observe(duration)
	}()

	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 3
	MaxHistoryLimit     = 500
)

var ErrInvalidReading = errors.New("invalid reading")

type Repository interface {
	SaveReading(ctx context.Context, reading *domain.TelemetryReading) error
	LatestReadings(ctx context.Context, limit int) ([]domain.TelemetryReading, error)
	HealthCheck(ctx context.Context) error
}

type TelemetryService struct {
	repo   Repository
	logger *zap.Logger
}

func NewTelemetryService(repo Repository, logger *zap.Logger) *TelemetryService {
	return &TelemetryService{
		repo:   repo,
		logger: logger,
	}
}

func (s *TelemetryService) CheckDBConnection(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// RecordReading проверяет показание и сохраняет его. Пустые ID и время заполняются.
func (s *TelemetryService) RecordReading(ctx context.Context, reading *domain.TelemetryReading) error {
	if err := ctx.Err(); err != nil {
		s.logger.Warn("[TelemetryService] Recording cancelled by context")
		return err
	}

	if err := ValidateReading(reading); err != nil {
		return err
	}

	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now().UTC()
	}

	if err := s.repo.SaveReading(ctx, reading); err != nil {
		s.logger.Error("[TelemetryService] Failed to save reading",
			zap.String("reading_id", reading.ID.String()),
			zap.Error(err))
		return err
	}

	s.logger.Debug("[TelemetryService] Reading recorded",
		zap.String("reading_id", reading.ID.String()),
		zap.Float64("flow_ml", reading.FlowML))

	return nil
}

func ValidateReading(reading *domain.TelemetryReading) error {
	switch {
	case reading == nil:
		return fmt.Errorf("%w: reading is required", ErrInvalidReading)
	case reading.FlowML < 0:
		return fmt.Errorf("%w: flow_ml must be non-negative", ErrInvalidReading)
	case reading.PressurePSI < 0:
		return fmt.Errorf("%w: pressure_psi must be non-negative", ErrInvalidReading)
	case reading.EnergyKW < 0:
		return fmt.Errorf("%w: energy_kw must be non-negative", ErrInvalidReading)
	case reading.IncidentsToday < 0:
		return fmt.Errorf("%w: incidents_today must be non-negative", ErrInvalidReading)
	}
	return nil
}

// LatestTelemetry возвращает последние показания, самое свежее последним
func (s *TelemetryService) LatestTelemetry(ctx context.Context, limit int) ([]domain.TelemetryReading, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	readings, err := s.repo.LatestReadings(ctx, limit)
	if err != nil {
		s.logger.Error("[TelemetryService] Failed to get latest telemetry",
			zap.Int("limit", limit),
			zap.Error(err))
		return nil, err
	}

	return readings, nil
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultCapacity = 1000

// Repository хранит последние показания в памяти, когда база данных не настроена
type Repository struct {
	mu       sync.RWMutex
	readings []domain.TelemetryReading // по RecordedAt, от старых к новым
	ids      map[uuid.UUID]struct{}
	capacity int
	logger   *zap.Logger
}

func NewRepository(capacity int, logger *zap.Logger) *Repository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Repository{
		readings: make([]domain.TelemetryReading, 0, capacity),
		ids:      make(map[uuid.UUID]struct{}, capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// NewSeededRepository заполняет хранилище тремя почасовыми показаниями городской сети
func NewSeededRepository(capacity int, logger *zap.Logger) *Repository {
	r := NewRepository(capacity, logger)
	for _, reading := range SeedReadings() {
		r.append(reading)
	}
	return r
}

func SeedReadings() []domain.TelemetryReading {
	return []domain.TelemetryReading{
		{
			ID:             uuid.MustParse("5f1c3d4e-0000-4000-8000-000000000001"),
			RecordedAt:     time.Date(2025, 11, 13, 8, 0, 0, 0, time.UTC),
			FlowML:         42.3,
			PressurePSI:    58,
			EnergyKW:       1240,
			IncidentsToday: 2,
		},
		{
			ID:             uuid.MustParse("5f1c3d4e-0000-4000-8000-000000000002"),
			RecordedAt:     time.Date(2025, 11, 13, 9, 0, 0, 0, time.UTC),
			FlowML:         44.1,
			PressurePSI:    60,
			EnergyKW:       1205,
			IncidentsToday: 3,
		},
		{
			ID:             uuid.MustParse("5f1c3d4e-0000-4000-8000-000000000003"),
			RecordedAt:     time.Date(2025, 11, 13, 10, 0, 0, 0, time.UTC),
			FlowML:         46.7,
			PressurePSI:    61,
			EnergyKW:       1278,
			IncidentsToday: 3,
		},
	}
}

func (r *Repository) SaveReading(ctx context.Context, reading *domain.TelemetryReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.append(*reading) {
		r.logger.Debug("reading not stored in memory",
			zap.String("reading_id", reading.ID.String()),
			zap.Time("recorded_at", reading.RecordedAt),
		)
		return nil
	}
	r.logger.Debug("reading stored in memory", zap.String("reading_id", reading.ID.String()))
	return nil
}

// append вставляет показание по времени записи, как ORDER BY recorded_at в postgres.
// Повторный ID игнорируется (ON CONFLICT (id) DO NOTHING); при заполнении вытесняется самое старое.
func (r *Repository) append(reading domain.TelemetryReading) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[reading.ID]; ok {
		return false
	}

	i := sort.Search(len(r.readings), func(i int) bool {
		return r.readings[i].RecordedAt.After(reading.RecordedAt)
	})

	if len(r.readings) == r.capacity {
		// старше всех хранимых: было бы вытеснено сразу
		if i == 0 {
			return false
		}
		delete(r.ids, r.readings[0].ID)
		copy(r.readings, r.readings[1:])
		r.readings = r.readings[:len(r.readings)-1]
		i--
	}

	r.readings = append(r.readings, domain.TelemetryReading{})
	copy(r.readings[i+1:], r.readings[i:])
	r.readings[i] = reading
	r.ids[reading.ID] = struct{}{}
	return true
}

// LatestReadings возвращает не более limit последних показаний, самое свежее последним
func (r *Repository) LatestReadings(ctx context.Context, limit int) ([]domain.TelemetryReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if limit > 0 && len(r.readings) > limit {
		start = len(r.readings) - limit
	}
	out := make([]domain.TelemetryReading, len(r.readings)-start)
	copy(out, r.readings[start:])
	return out, nil
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (r *Repository) Close() {}

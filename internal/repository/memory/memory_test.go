package memory

import (
	"context"
	"testing"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeededRepository_LatestReadings(t *testing.T) {
	repo := NewSeededRepository(10, zap.NewNop())

	readings, err := repo.LatestReadings(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 44.1, readings[0].FlowML)
	assert.Equal(t, 46.7, readings[1].FlowML)

	all, err := repo.LatestReadings(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_CapacityEvictsOldest(t *testing.T) {
	repo := NewRepository(2, zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := repo.SaveReading(ctx, &domain.TelemetryReading{
			ID:         uuid.New(),
			RecordedAt: time.Now(),
			FlowML:     float64(i),
		})
		require.NoError(t, err)
	}

	readings, err := repo.LatestReadings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 2.0, readings[0].FlowML)
	assert.Equal(t, 3.0, readings[1].FlowML)
}

func TestRepository_ReturnsCopy(t *testing.T) {
	repo := NewSeededRepository(10, zap.NewNop())

	readings, err := repo.LatestReadings(context.Background(), 1)
	require.NoError(t, err)
	readings[0].FlowML = -1

	again, err := repo.LatestReadings(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 46.7, again[0].FlowML)
}

func TestRepository_CancelledContext(t *testing.T) {
	repo := NewRepository(0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, repo.SaveReading(ctx, &domain.TelemetryReading{}))
	assert.Error(t, repo.HealthCheck(ctx))
	_, err := repo.LatestReadings(ctx, 1)
	assert.Error(t, err)
}

func TestRepository_OrdersByRecordedAt(t *testing.T) {
	repo := NewSeededRepository(10, zap.NewNop())
	ctx := context.Background()

	backdated := &domain.TelemetryReading{
		ID:         uuid.New(),
		RecordedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		FlowML:     1,
	}
	require.NoError(t, repo.SaveReading(ctx, backdated))

	readings, err := repo.LatestReadings(ctx, 3)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, 46.7, readings[2].FlowML, "newest reading must stay last")

	all, err := repo.LatestReadings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, backdated.ID, all[0].ID)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].RecordedAt.Before(all[i-1].RecordedAt), "readings out of order at %d", i)
	}

	between := &domain.TelemetryReading{
		ID:         uuid.New(),
		RecordedAt: time.Date(2025, 11, 13, 9, 30, 0, 0, time.UTC),
		FlowML:     45,
	}
	require.NoError(t, repo.SaveReading(ctx, between))

	readings, err = repo.LatestReadings(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{45, 46.7}, []float64{readings[0].FlowML, readings[1].FlowML})
}

func TestRepository_IgnoresDuplicateID(t *testing.T) {
	repo := NewSeededRepository(10, zap.NewNop())
	ctx := context.Background()

	reading := &domain.TelemetryReading{
		ID:         uuid.New(),
		RecordedAt: time.Date(2025, 11, 13, 11, 0, 0, 0, time.UTC),
		FlowML:     50,
	}
	require.NoError(t, repo.SaveReading(ctx, reading))

	again := *reading
	again.FlowML = 99
	require.NoError(t, repo.SaveReading(ctx, &again))

	all, err := repo.LatestReadings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 50.0, all[3].FlowML)

	// повтор посевного показания тоже игнорируется
	seed := SeedReadings()[0]
	require.NoError(t, repo.SaveReading(ctx, &seed))
	all, err = repo.LatestReadings(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRepository_FullSkipsOlderThanAll(t *testing.T) {
	repo := NewSeededRepository(3, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.SaveReading(ctx, &domain.TelemetryReading{
		ID:         uuid.New(),
		RecordedAt: time.Date(2025, 11, 13, 7, 0, 0, 0, time.UTC),
		FlowML:     1,
	}))

	all, err := repo.LatestReadings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 42.3, all[0].FlowML)

	evicting := &domain.TelemetryReading{
		ID:         uuid.New(),
		RecordedAt: time.Date(2025, 11, 13, 11, 0, 0, 0, time.UTC),
		FlowML:     50,
	}
	require.NoError(t, repo.SaveReading(ctx, evicting))

	all, err = repo.LatestReadings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 44.1, all[0].FlowML)
	assert.Equal(t, 50.0, all[2].FlowML)

	// вытесненный ID можно сохранить снова
	first := SeedReadings()[0]
	first.RecordedAt = time.Date(2025, 11, 13, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveReading(ctx, &first))
	all, err = repo.LatestReadings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, all[0].ID)
}

package telemetry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/pkg/utils"
)

// Диапазоны синтетических снимков, правая граница не включается
const (
	SyntheticFlowMin      = 100.0
	SyntheticFlowMax      = 300.0
	SyntheticPressureMin  = 10.0
	SyntheticPressureMax  = 90.0
	SyntheticEnergyMin    = 5.0
	SyntheticEnergyMax    = 45.0
	SyntheticIncidentsMax = 4
)

// Clock позволяет подменять время в тестах
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// Synthesizer генерирует правдоподобные снимки-заглушки, когда живого источника нет
type Synthesizer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock Clock
}

func NewSynthesizer(src rand.Source, clock Clock) *Synthesizer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Synthesizer{rng: rand.New(src), clock: clock}
}

func (s *Synthesizer) Snapshot() domain.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.TelemetrySnapshot{
		Timestamp:           s.clock.Now(),
		TotalFlowMl:         utils.RandomFloat(s.rng, SyntheticFlowMin, SyntheticFlowMax),
		PressurePsi:         utils.RandomFloat(s.rng, SyntheticPressureMin, SyntheticPressureMax),
		EnergyConsumptionKw: utils.RandomFloat(s.rng, SyntheticEnergyMin, SyntheticEnergyMax),
		IncidentsToday:      utils.RandomInt(s.rng, 0, SyntheticIncidentsMax),
	}
}

// Package telemetry получает живую телеметрию для слоя отображения портала.
//
// Сессия сначала пытается открыть потоковое соединение с бэкендом. Если соединение не открылось
// или оборвалось, сессия один раз и навсегда переходит на синтетические снимки с фиксированным интервалом,
// так что потребитель никогда не видит пустую или замершую ленту.
package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"

	"go.uber.org/zap"
)

// Mode способ получения телеметрии
type Mode string

const (
	ModeAuto            Mode = "auto"
	ModeForcedSynthetic Mode = "forced-synthetic"
)

// Origin источник набора снимков
type Origin string

const (
	OriginLive      Origin = "live"
	OriginSynthetic Origin = "synthetic"
)

// State состояние сессии
type State int

const (
	StateConnecting State = iota
	StateLive
	StateSynthetic
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateSynthetic:
		return "synthetic"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	DefaultSynthesisInterval = 5 * time.Second
	StreamPath               = "/ws/telemetry"
)

type Config struct {
	Mode              Mode
	Endpoint          string
	SynthesisInterval time.Duration
}

func (c Config) interval() time.Duration {
	if c.SynthesisInterval <= 0 {
		return DefaultSynthesisInterval
	}
	return c.SynthesisInterval
}

// EndpointFromBase превращает базовый адрес API в адрес потока: http -> ws, https -> wss, плюс /ws/telemetry
func EndpointFromBase(base string) string {
	endpoint := strings.TrimSuffix(base, "/")
	if strings.HasPrefix(endpoint, "http") {
		endpoint = "ws" + strings.TrimPrefix(endpoint, "http")
	}
	return endpoint + StreamPath
}

// Batch набор снимков, который видит слой отображения. Последний элемент самый свежий.
type Batch struct {
	Origin     Origin                     `json:"origin"`
	Snapshots  []domain.TelemetrySnapshot `json:"snapshots"`
	ProducedAt time.Time                  `json:"produced_at"`
}

func (b Batch) clone() Batch {
	if b.Snapshots != nil {
		b.Snapshots = append([]domain.TelemetrySnapshot(nil), b.Snapshots...)
	}
	return b
}

// Current возвращает самый свежий снимок набора
func (b Batch) Current() (domain.TelemetrySnapshot, bool) {
	if len(b.Snapshots) == 0 {
		return domain.TelemetrySnapshot{}, false
	}
	return b.Snapshots[len(b.Snapshots)-1], true
}

// Status позволяет проверить, какой ресурс сейчас удерживает сессия
type Status struct {
	State          State
	ConnectionOpen bool
	TimerActive    bool
}

type Acquirer struct {
	dialer Dialer
	synth  *Synthesizer
	clock  Clock
	logger *zap.Logger
}

type Option func(*Acquirer)

func WithSynthesizer(s *Synthesizer) Option {
	return func(a *Acquirer) { a.synth = s }
}

func WithClock(c Clock) Option {
	return func(a *Acquirer) { a.clock = c }
}

func NewAcquirer(dialer Dialer, logger *zap.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		dialer: dialer,
		clock:  RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.synth == nil {
		a.synth = NewSynthesizer(nil, a.clock)
	}
	return a
}

// Start запускает сессию и сразу возвращается. Отмена ctx равносильна Stop.
func (a *Acquirer) Start(ctx context.Context, cfg Config) *Session {
	s := newSession(ctx, a, cfg)

	s.logger.Info("starting telemetry acquisition",
		zap.String("mode", string(cfg.Mode)),
		zap.String("endpoint", cfg.Endpoint),
		zap.Duration("synthesis_interval", cfg.interval()),
	)

	if cfg.Mode == ModeForcedSynthetic {
		s.startSynthesis(StateSynthetic)
	} else {
		s.setState(StateConnecting)
		s.helpers.Add(1)
		go s.dial()
	}

	go s.run()
	return s
}

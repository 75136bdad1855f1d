package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errNoDialer = errors.New("no dialer configured")

// события, которые вспомогательные горутины передают в цикл сессии
type sessionEvent interface {
	sessionEvent()
}

type connOpened struct {
	conn Conn
}

type frameReceived struct {
	conn Conn
	data []byte
}

type connLost struct {
	conn Conn
	err  error
}

func (connOpened) sessionEvent()    {}
func (frameReceived) sessionEvent() {}
func (connLost) sessionEvent()      {}

// Session одна сессия получения телеметрии. Всё её состояние меняет только горутина run,
// dial и read лишь отправляют события в канал events.
type Session struct {
	id     uuid.UUID
	cfg    Config
	dialer Dialer
	synth  *Synthesizer
	clock  Clock
	logger *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan sessionEvent
	updates chan Batch
	done    chan struct{}
	helpers sync.WaitGroup

	// mu защищает поля ниже для чтения снаружи; пишет в них только run
	mu     sync.RWMutex
	state  State
	latest Batch
	conn   Conn
	ticker *time.Ticker
}

func newSession(ctx context.Context, a *Acquirer, cfg Config) *Session {
	id := uuid.New()
	s := &Session{
		id:      id,
		cfg:     cfg,
		dialer:  a.dialer,
		synth:   a.synth,
		clock:   a.clock,
		logger:  a.logger.With(zap.String("session_id", id.String())),
		events:  make(chan sessionEvent),
		updates: make(chan Batch, 1),
		done:    make(chan struct{}),
		state:   StateStopped,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Done закрывается, когда сессия освободила все ресурсы
func (s *Session) Done() <-chan struct{} { return s.done }

// Updates отдаёт только самый свежий набор; канал закрывается после остановки
func (s *Session) Updates() <-chan Batch { return s.updates }

// Latest возвращает копию текущего набора снимков
func (s *Session) Latest() Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest.clone()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:          s.state,
		ConnectionOpen: s.conn != nil,
		TimerActive:    s.ticker != nil,
	}
}

// Stop освобождает соединение или таймер и ждёт завершения всех горутин сессии. Повторный вызов ничего не делает.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

func (s *Session) run() {
	defer s.finish()

	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}

		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		case <-tick:
			s.emitSynthetic()
		}
	}
}

func (s *Session) handle(ev sessionEvent) {
	switch e := ev.(type) {
	case connOpened:
		if s.state != StateConnecting {
			// после перехода на синтетику назад не возвращаемся
			s.logger.Debug("discarding connection opened after fallback")
			_ = e.conn.Close()
			return
		}
		s.mu.Lock()
		s.conn = e.conn
		s.setStateLocked(StateLive)
		s.mu.Unlock()
		s.logger.Info("telemetry stream connected")

		s.helpers.Add(1)
		go s.read(e.conn)

	case frameReceived:
		if s.state != StateLive || e.conn != s.conn {
			return
		}
		now := s.clock.Now()
		snapshots, err := ParseEnvelope(e.data, now)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, ErrNotSnapshotBatch) {
				reason = "ignored"
			}
			metrics.FeedFramesDropped.WithLabelValues(reason).Inc()
			s.logger.Debug("dropping telemetry frame", zap.String("reason", reason), zap.Error(err))
			return
		}
		metrics.FeedFramesAccepted.Inc()
		s.publish(Batch{Origin: OriginLive, Snapshots: snapshots, ProducedAt: now})

	case connLost:
		switch {
		case s.state == StateConnecting:
		case s.state == StateLive && e.conn == s.conn:
		default:
			return
		}
		s.logger.Warn("live telemetry unavailable, switching to synthetic snapshots",
			zap.String("from_state", s.state.String()),
			zap.Error(e.err),
		)
		metrics.FeedFallbacks.Inc()
		s.startSynthesis(StateSynthetic)
	}
}

// startSynthesis закрывает соединение и запускает таймер под одной блокировкой,
// поэтому Status никогда не видит оба ресурса сразу
func (s *Session) startSynthesis(next State) {
	s.mu.Lock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("failed to close telemetry connection", zap.Error(err))
		}
		s.conn = nil
	}
	s.ticker = time.NewTicker(s.cfg.interval())
	s.setStateLocked(next)
	s.mu.Unlock()

	s.emitSynthetic()
}

func (s *Session) emitSynthetic() {
	snapshot := s.synth.Snapshot()
	metrics.FeedSyntheticBatches.Inc()
	s.publish(Batch{
		Origin:     OriginSynthetic,
		Snapshots:  []domain.TelemetrySnapshot{snapshot},
		ProducedAt: snapshot.Timestamp,
	})
}

func (s *Session) publish(b Batch) {
	s.mu.Lock()
	s.latest = b
	s.mu.Unlock()

	// последний набор вытесняет непрочитанный
	select {
	case s.updates <- b.clone():
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- b.clone():
	default:
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.setStateLocked(next)
	s.mu.Unlock()
}

func (s *Session) setStateLocked(next State) {
	if s.state != StateStopped {
		metrics.FeedSessions.WithLabelValues(s.state.String()).Dec()
	}
	if next != StateStopped {
		metrics.FeedSessions.WithLabelValues(next.String()).Inc()
	}
	s.state = next
}

func (s *Session) finish() {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	s.helpers.Wait()
	close(s.updates)
	close(s.done)

	s.logger.Info("telemetry acquisition stopped")
}

func (s *Session) dial() {
	defer s.helpers.Done()

	if s.dialer == nil {
		s.post(connLost{err: errNoDialer})
		return
	}

	conn, err := s.dialer.Dial(s.ctx, s.cfg.Endpoint)
	if err != nil {
		s.post(connLost{err: err})
		return
	}
	if !s.post(connOpened{conn: conn}) {
		_ = conn.Close()
	}
}

func (s *Session) read(conn Conn) {
	defer s.helpers.Done()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.post(connLost{conn: conn, err: err})
			return
		}
		if !s.post(frameReceived{conn: conn, data: data}) {
			return
		}
	}
}

// post доставляет событие в run; false означает, что сессия уже останавливается
func (s *Session) post(ev sessionEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

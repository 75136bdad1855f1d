package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

type TelemetrySource interface {
	LatestTelemetry(ctx context.Context, limit int) ([]domain.TelemetryReading, error)
}

// Hub раздаёт конверты telemetry_snapshot всем подключённым клиентам
type Hub struct {
	source   TelemetrySource
	interval time.Duration
	limit    int
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*websocket.Conn
	closed  bool
	wg      sync.WaitGroup
}

func NewHub(source TelemetrySource, interval time.Duration, limit int, logger *zap.Logger) *Hub {
	return &Hub{
		source:   source,
		interval: interval,
		limit:    limit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// портал и API живут на разных origin, как и CORS "*" у бэкенда
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[uuid.UUID]*websocket.Conn),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.New()
	if !h.register(id, ws) {
		_ = ws.Close()
		return
	}
	defer h.unregister(id)

	logger := h.logger.With(zap.String("client_id", id.String()), zap.String("ip", r.RemoteAddr))
	logger.Info("telemetry stream client connected")

	// клиент ничего не шлёт, читаем только чтобы заметить закрытие
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.send(r.Context(), ws); err != nil {
			logger.Info("telemetry stream client disconnected", zap.Error(err))
			_ = ws.Close()
			<-gone
			return
		}

		select {
		case <-gone:
			logger.Info("telemetry stream client closed connection")
			return
		case <-r.Context().Done():
			_ = ws.Close()
			<-gone
			return
		case <-ticker.C:
		}
	}
}

func (h *Hub) send(ctx context.Context, ws *websocket.Conn) error {
	readings, err := h.source.LatestTelemetry(ctx, h.limit)
	if err != nil {
		// пропускаем тик, клиент увидит следующий
		h.logger.Error("failed to load telemetry for stream", zap.Error(err))
		return nil
	}
	if readings == nil {
		readings = []domain.TelemetryReading{}
	}

	envelope := domain.Envelope{
		Type:      domain.EnvelopeTypeSnapshot,
		Timestamp: time.Now().UTC(),
		Data:      readings,
	}

	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := ws.WriteJSON(envelope); err != nil {
		return err
	}
	metrics.StreamFramesSent.Inc()
	return nil
}

func (h *Hub) register(id uuid.UUID, ws *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[id] = ws
	h.wg.Add(1)
	metrics.StreamClients.Inc()
	return true
}

func (h *Hub) unregister(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		metrics.StreamClients.Dec()
		h.wg.Done()
	}
}

// Clients количество подключённых клиентов
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close закрывает все соединения и ждёт завершения их обработчиков.
// http.Server.Shutdown не трогает перехваченные websocket соединения.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for _, ws := range h.clients {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/internal/metrics"
	"github.com/CoolE88/water-telemetry/internal/service"
	"github.com/CoolE88/water-telemetry/internal/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

type DataService interface {
	LatestTelemetry(ctx context.Context, limit int) ([]domain.TelemetryReading, error)
	RecordReading(ctx context.Context, reading *domain.TelemetryReading) error
	CheckDBConnection(ctx context.Context) error
}

// FeedReader текущая сессия получения телеметрии на стороне портала
type FeedReader interface {
	ID() uuid.UUID
	Status() telemetry.Status
	Latest() telemetry.Batch
}

type HTTPServer struct {
	server  *http.Server
	service DataService
	feed    FeedReader
	logger  *zap.Logger
}

// NewHTTPServer сервер бэкенда: REST телеметрии, поток /api/ws/telemetry и метрики
func NewHTTPServer(addr string, service DataService, stream http.Handler, logger *zap.Logger) *HTTPServer {
	s, router := newServer(addr, logger)
	s.service = service

	router.HandleFunc("/health", s.healthCheck).Methods("GET")
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/telemetry", s.getLatestTelemetry).Methods("GET")
	api.HandleFunc("/telemetry", s.recordReading).Methods("POST")
	if stream != nil {
		api.Handle("/ws/telemetry", stream).Methods("GET")
	}

	return s
}

// NewFeedServer сервер портала: отдаёт слою отображения последний набор снимков
func NewFeedServer(addr string, feed FeedReader, logger *zap.Logger) *HTTPServer {
	s, router := newServer(addr, logger)
	s.feed = feed

	router.HandleFunc("/health", s.feedHealth).Methods("GET")
	router.HandleFunc("/api/v1/feed", s.getFeed).Methods("GET")

	return s
}

func newServer(addr string, logger *zap.Logger) (*HTTPServer, *mux.Router) {
	router := mux.NewRouter()

	s := &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	// Middleware регистрации
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	// Метрики Prometheus
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return s, router
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWriter для отслеживания статус кода и размера
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Hijack нужен для апгрейда до websocket
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// middleware для сбора метрик HTTP запросов с использованием шаблона пути
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		method := r.Method
		status := strconv.Itoa(rw.statusCode)

		// Получаем шаблон пути из mux (если доступен)
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
		metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(rw.size))
	})
}

// middleware для логирования HTTP запросов
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.String("ip", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("status", rw.statusCode),
			zap.Int("response_size", rw.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CheckDBConnection(r.Context()); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) getLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	readings, err := s.service.LatestTelemetry(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to get latest telemetry", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []domain.TelemetryReading{}
	}

	s.writeJSON(w, http.StatusOK, readings)
}

func (s *HTTPServer) recordReading(w http.ResponseWriter, r *http.Request) {
	var reading domain.TelemetryReading
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&reading); err != nil {
		s.logger.Warn("invalid reading payload", zap.Error(err))
		http.Error(w, "invalid reading payload", http.StatusBadRequest)
		return
	}

	if err := s.service.RecordReading(r.Context(), &reading); err != nil {
		if errors.Is(err, service.ErrInvalidReading) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("Failed to record reading", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, reading)
}

type feedResponse struct {
	SessionID  string                     `json:"session_id"`
	State      string                     `json:"state"`
	Origin     telemetry.Origin           `json:"origin,omitempty"`
	ProducedAt *time.Time                 `json:"produced_at,omitempty"`
	Snapshots  []domain.TelemetrySnapshot `json:"snapshots"`
}

func (s *HTTPServer) getFeed(w http.ResponseWriter, r *http.Request) {
	batch := s.feed.Latest()
	response := feedResponse{
		SessionID: s.feed.ID().String(),
		State:     s.feed.Status().State.String(),
		Origin:    batch.Origin,
		Snapshots: batch.Snapshots,
	}
	if !batch.ProducedAt.IsZero() {
		response.ProducedAt = &batch.ProducedAt
	}
	if response.Snapshots == nil {
		response.Snapshots = []domain.TelemetrySnapshot{}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) feedHealth(w http.ResponseWriter, r *http.Request) {
	state := s.feed.Status().State
	if state == telemetry.StateStopped {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "feed_state": state.String()})
}

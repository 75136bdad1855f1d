package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"
	"github.com/CoolE88/water-telemetry/internal/service"
	"github.com/CoolE88/water-telemetry/internal/telemetry"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) LatestTelemetry(ctx context.Context, limit int) ([]domain.TelemetryReading, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TelemetryReading), args.Error(1)
}

func (m *MockService) RecordReading(ctx context.Context, reading *domain.TelemetryReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockService) CheckDBConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type stubFeed struct {
	id     uuid.UUID
	status telemetry.Status
	batch  telemetry.Batch
}

func (f *stubFeed) ID() uuid.UUID            { return f.id }
func (f *stubFeed) Status() telemetry.Status { return f.status }
func (f *stubFeed) Latest() telemetry.Batch  { return f.batch }

func TestHTTPServer_HealthCheck(t *testing.T) {
	mockService := new(MockService)
	logger, _ := zap.NewDevelopment()
	server := NewHTTPServer(":8000", mockService, nil, logger)

	mockService.On("CheckDBConnection", mock.Anything).Return(nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	server.healthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	mockService.AssertExpectations(t)
}

func TestHTTPServer_HealthCheck_Unavailable(t *testing.T) {
	mockService := new(MockService)
	server := NewHTTPServer(":8000", mockService, nil, zap.NewNop())

	mockService.On("CheckDBConnection", mock.Anything).Return(errors.New("connection refused"))

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHTTPServer_GetLatestTelemetry(t *testing.T) {
	mockService := new(MockService)
	logger, _ := zap.NewDevelopment()
	server := NewHTTPServer(":8000", mockService, nil, logger)

	expected := []domain.TelemetryReading{
		{ID: uuid.New(), RecordedAt: time.Now().UTC(), FlowML: 44.1, PressurePSI: 60},
		{ID: uuid.New(), RecordedAt: time.Now().UTC(), FlowML: 46.7, PressurePSI: 61},
	}
	mockService.On("LatestTelemetry", mock.Anything, 2).Return(expected, nil)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/telemetry?limit=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.Equal(t, 46.7, response[1]["flow_ml"])
	assert.Contains(t, response[0], "timestamp")
	mockService.AssertExpectations(t)
}

func TestHTTPServer_GetLatestTelemetry_DefaultLimitAndEmpty(t *testing.T) {
	mockService := new(MockService)
	server := NewHTTPServer(":8000", mockService, nil, zap.NewNop())

	mockService.On("LatestTelemetry", mock.Anything, 0).Return(nil, nil)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/telemetry", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHTTPServer_GetLatestTelemetry_BadLimit(t *testing.T) {
	mockService := new(MockService)
	server := NewHTTPServer(":8000", mockService, nil, zap.NewNop())

	for _, limit := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/telemetry?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
	mockService.AssertNotCalled(t, "LatestTelemetry", mock.Anything, mock.Anything)
}

func TestHTTPServer_RecordReading(t *testing.T) {
	mockService := new(MockService)
	server := NewHTTPServer(":8000", mockService, nil, zap.NewNop())

	mockService.On("RecordReading", mock.Anything, mock.MatchedBy(func(r *domain.TelemetryReading) bool {
		return r.FlowML == 42.3 && r.IncidentsToday == 2 && r.ZoneID == "zone-1"
	})).Return(nil)

	body := `{"zone_id":"zone-1","flow_ml":42.3,"pressure_psi":58,"energy_kw":1240,"incidents_today":2}`
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/telemetry", strings.NewReader(body)))

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestHTTPServer_RecordReading_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		expected   int
	}{
		{"bad json", `{"flow_ml":`, nil, http.StatusBadRequest},
		{"unknown field", `{"flow":1}`, nil, http.StatusBadRequest},
		{"invalid reading", `{"flow_ml":-1}`, fmt.Errorf("%w: flow_ml must be non-negative", service.ErrInvalidReading), http.StatusBadRequest},
		{"storage failure", `{"flow_ml":1}`, errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			server := NewHTTPServer(":8000", mockService, nil, zap.NewNop())
			if tt.serviceErr != nil {
				mockService.On("RecordReading", mock.Anything, mock.Anything).Return(tt.serviceErr)
			}

			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/telemetry", strings.NewReader(tt.body)))

			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestHTTPServer_StreamRouteUpgradesThroughMiddleware(t *testing.T) {
	upgrader := websocket.Upgrader{}
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"telemetry_snapshot","data":[]}`))
	})

	server := NewHTTPServer(":8000", new(MockService), stream, zap.NewNop())
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	ws, resp, err := websocket.DefaultDialer.Dial(telemetry.EndpointFromBase(srv.URL+"/api"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer ws.Close()

	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(frame), "telemetry_snapshot")
}

func TestFeedServer_GetFeed(t *testing.T) {
	feed := &stubFeed{
		id:     uuid.New(),
		status: telemetry.Status{State: telemetry.StateSynthetic, TimerActive: true},
		batch: telemetry.Batch{
			Origin:     telemetry.OriginSynthetic,
			ProducedAt: time.Date(2025, 11, 13, 12, 0, 0, 0, time.UTC),
			Snapshots:  []domain.TelemetrySnapshot{{TotalFlowMl: 150, PressurePsi: 40}},
		},
	}
	server := NewFeedServer(":3000", feed, zap.NewNop())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/feed", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		SessionID string                     `json:"session_id"`
		State     string                     `json:"state"`
		Origin    string                     `json:"origin"`
		Snapshots []domain.TelemetrySnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, feed.id.String(), response.SessionID)
	assert.Equal(t, "synthetic", response.State)
	assert.Equal(t, "synthetic", response.Origin)
	require.Len(t, response.Snapshots, 1)
	assert.Equal(t, 150.0, response.Snapshots[0].TotalFlowMl)
}

func TestFeedServer_EmptyFeed(t *testing.T) {
	feed := &stubFeed{id: uuid.New(), status: telemetry.Status{State: telemetry.StateConnecting}}
	server := NewFeedServer(":3000", feed, zap.NewNop())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/feed", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"snapshots":[]`)
	assert.Contains(t, w.Body.String(), `"state":"connecting"`)
	assert.NotContains(t, w.Body.String(), "produced_at")
}

func TestFeedServer_Health(t *testing.T) {
	feed := &stubFeed{id: uuid.New(), status: telemetry.Status{State: telemetry.StateLive, ConnectionOpen: true}}
	server := NewFeedServer(":3000", feed, zap.NewNop())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"feed_state":"live"`)

	feed.status = telemetry.Status{State: telemetry.StateStopped}
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

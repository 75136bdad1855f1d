package domain

import (
	"time"

	"github.com/google/uuid"
)

// EnvelopeTypeSnapshot тег конверта с пачкой снимков телеметрии
const EnvelopeTypeSnapshot = "telemetry_snapshot"

// TelemetrySnapshot снимок состояния водоснабжения в момент времени, как его видит слой отображения
type TelemetrySnapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	TotalFlowMl         float64   `json:"totalFlowMl"`
	PressurePsi         float64   `json:"pressurePsi"`
	EnergyConsumptionKw float64   `json:"energyConsumptionKw"`
	IncidentsToday      int       `json:"incidentsToday"`
}

// TelemetryReading показание, которое хранит и транслирует бэкенд
type TelemetryReading struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ZoneID         string    `json:"zone_id,omitempty" db:"zone_id"`
	RecordedAt     time.Time `json:"timestamp" db:"recorded_at"`
	FlowML         float64   `json:"flow_ml" db:"flow_ml"`
	PressurePSI    float64   `json:"pressure_psi" db:"pressure_psi"`
	EnergyKW       float64   `json:"energy_kw" db:"energy_kw"`
	IncidentsToday int       `json:"incidents_today" db:"incidents_today"`
}

// Envelope внешний конверт сообщения потока
type Envelope struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Data      []TelemetryReading `json:"data"`
}

package telemetry

import (
	"errors"
	"math"
	"time"

	"github.com/CoolE88/water-telemetry/internal/domain"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformedFrame   = errors.New("frame is not valid JSON")
	ErrNotSnapshotBatch = errors.New("frame is not a telemetry snapshot batch")
)

// fieldRule строка таблицы разрешения полей: сначала primary, затем legacy, иначе значение по умолчанию
type fieldRule struct {
	primary string
	legacy  string
}

var (
	flowRule      = fieldRule{primary: "flow_ml", legacy: "totalFlowMl"}
	pressureRule  = fieldRule{primary: "pressure_psi", legacy: "pressurePsi"}
	energyRule    = fieldRule{primary: "energy_kw", legacy: "energyConsumptionKw"}
	incidentsRule = fieldRule{primary: "incidents_today", legacy: "incidentsToday"}
)

// naiveISOLayout ISO-8601 без смещения, такие метки считаем UTC
const naiveISOLayout = "2006-01-02T15:04:05.999999999"

// resolve возвращает первое неотрицательное число из primary/legacy или 0
func (r fieldRule) resolve(item gjson.Result) float64 {
	for _, name := range [...]string{r.primary, r.legacy} {
		v := item.Get(name)
		if v.Type != gjson.Number {
			continue
		}
		if f := v.Float(); f >= 0 && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

// ParseEnvelope разбирает кадр потока в набор снимков. now подставляется вместо отсутствующих меток времени.
func ParseEnvelope(frame []byte, now time.Time) ([]domain.TelemetrySnapshot, error) {
	if !gjson.ValidBytes(frame) {
		return nil, ErrMalformedFrame
	}

	envelope := gjson.ParseBytes(frame)
	if tag := envelope.Get("type"); tag.Type != gjson.String || tag.Str != domain.EnvelopeTypeSnapshot {
		return nil, ErrNotSnapshotBatch
	}

	data := envelope.Get("data")
	if !data.IsArray() {
		return nil, ErrNotSnapshotBatch
	}

	items := data.Array()
	snapshots := make([]domain.TelemetrySnapshot, 0, len(items))
	for _, item := range items {
		// null в наборе портит весь кадр, остальные не-объекты дают снимок по умолчанию
		if item.Type == gjson.Null {
			return nil, ErrMalformedFrame
		}
		snapshots = append(snapshots, mapSnapshot(item, now))
	}
	return snapshots, nil
}

func mapSnapshot(item gjson.Result, now time.Time) domain.TelemetrySnapshot {
	if !item.IsObject() {
		return domain.TelemetrySnapshot{Timestamp: now}
	}

	return domain.TelemetrySnapshot{
		Timestamp:           resolveTimestamp(item.Get("timestamp"), now),
		TotalFlowMl:         flowRule.resolve(item),
		PressurePsi:         pressureRule.resolve(item),
		EnergyConsumptionKw: energyRule.resolve(item),
		IncidentsToday:      int(math.Min(incidentsRule.resolve(item), math.MaxInt32)),
	}
}

func resolveTimestamp(v gjson.Result, now time.Time) time.Time {
	if v.Type != gjson.String || v.Str == "" {
		return now
	}
	if ts, err := time.Parse(time.RFC3339Nano, v.Str); err == nil {
		return ts
	}
	if ts, err := time.ParseInLocation(naiveISOLayout, v.Str, time.UTC); err == nil {
		return ts
	}
	return now
}

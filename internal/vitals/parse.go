package vitals

import (
	"sort"

	"github.com/fleetbridge/fleetbridge/pkg/models"
)

// Well-known heartbeat payload fields for edge computers. Everything else
// numeric is treated as a sensor reading.
const (
	fieldCPUPercent  = "cpu_percent"
	fieldMemPercent  = "mem_percent"
	fieldTempCelsius = "temp_celsius"
)

// parseMetrics extracts numeric metrics from a heartbeat payload. Malformed
// fields are dropped, never rejected: a heartbeat with a garbage payload
// still refreshes liveness. Returns the names of dropped fields for logging.
func parseMetrics(payload map[string]any) (models.Metrics, []string) {
	var m models.Metrics
	var dropped []string

	for key, raw := range payload {
		val, ok := toFloat(raw)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		switch key {
		case fieldCPUPercent:
			m.CPUPercent = &val
		case fieldMemPercent:
			m.MemPercent = &val
		case fieldTempCelsius:
			m.TempCelsius = &val
		default:
			if m.Readings == nil {
				m.Readings = make(map[string]float64)
			}
			m.Readings[key] = val
		}
	}
	sort.Strings(dropped)
	return m, dropped
}

// toFloat accepts the numeric shapes a decoded JSON payload can carry.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sortHealth(hs []Health) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].DeviceID < hs[j].DeviceID })
}

package models

// Metrics is the most recent health payload reported by a device.
// The typed fields cover the common edge-computer gauges; Readings carries
// sensor values keyed by capability name (temperature, humidity, ...).
// Pointer fields distinguish "not reported" from a literal zero.
type Metrics struct {
	CPUPercent  *float64           `json:"cpu_percent,omitempty" example:"12.5"`
	MemPercent  *float64           `json:"mem_percent,omitempty" example:"48.2"`
	TempCelsius *float64           `json:"temp_celsius,omitempty" example:"41.0"`
	Readings    map[string]float64 `json:"readings,omitempty"`
}

// Merge overlays non-nil fields of other onto m. Readings are merged
// key by key so a partial report never erases earlier values.
func (m *Metrics) Merge(other Metrics) {
	if other.CPUPercent != nil {
		m.CPUPercent = other.CPUPercent
	}
	if other.MemPercent != nil {
		m.MemPercent = other.MemPercent
	}
	if other.TempCelsius != nil {
		m.TempCelsius = other.TempCelsius
	}
	if len(other.Readings) > 0 {
		if m.Readings == nil {
			m.Readings = make(map[string]float64, len(other.Readings))
		}
		for k, v := range other.Readings {
			m.Readings[k] = v
		}
	}
}

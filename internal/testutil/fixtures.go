package testutil

import (
	"github.com/google/uuid"

	"github.com/fleetbridge/fleetbridge/pkg/models"
)

// NewDevice returns an edge-computer Device with sensible defaults,
// suitable for test fixtures. Override individual fields with options
// as needed. Timestamps are left zero; the roster stamps them on
// registration.
func NewDevice(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		ID:       "edge-" + uuid.New().String()[:8],
		Name:     "test-device",
		Category: models.CategoryEdgeComputer,
		Host:     "192.168.1.100",
		Port:     22,
		User:     "fleet",
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// NewSensor returns an iot-sensor Device. Sensors carry no SSH endpoint;
// they only report heartbeats.
func NewSensor(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		ID:           "sensor-" + uuid.New().String()[:8],
		Name:         "test-sensor",
		Category:     models.CategoryIoTSensor,
		Capabilities: []string{"temperature"},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithID sets the device ID.
func WithID(id string) func(*models.Device) {
	return func(d *models.Device) { d.ID = id }
}

// WithName sets the device display name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithCategory sets the device category.
func WithCategory(c models.DeviceCategory) func(*models.Device) {
	return func(d *models.Device) { d.Category = c }
}

// WithAddress sets the SSH endpoint.
func WithAddress(host string, port int) func(*models.Device) {
	return func(d *models.Device) {
		d.Host = host
		d.Port = port
	}
}

// WithUser sets the SSH user.
func WithUser(user string) func(*models.Device) {
	return func(d *models.Device) { d.User = user }
}

// WithCapabilities sets the device capability list.
func WithCapabilities(caps ...string) func(*models.Device) {
	return func(d *models.Device) { d.Capabilities = caps }
}

// NewMetrics returns a Metrics payload with all three gauges populated.
func NewMetrics(opts ...func(*models.Metrics)) models.Metrics {
	m := models.Metrics{
		CPUPercent:  Float64(12.5),
		MemPercent:  Float64(48.2),
		TempCelsius: Float64(41.0),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithReading adds a named sensor reading.
func WithReading(name string, value float64) func(*models.Metrics) {
	return func(m *models.Metrics) {
		if m.Readings == nil {
			m.Readings = make(map[string]float64)
		}
		m.Readings[name] = value
	}
}

// Float64 returns a pointer to v, for the optional gauge fields.
func Float64(v float64) *float64 { return &v }

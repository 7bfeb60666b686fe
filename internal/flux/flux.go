// Package flux forwards device heartbeat metrics to InfluxDB. It is an
// optional sink: when disabled or unreachable the rest of the system runs
// without it, and writes are non-blocking so a slow InfluxDB never stalls
// heartbeat handling.
package flux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/vitals"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// Config holds the flux module configuration.
type Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	URL             string `mapstructure:"url"`
	Token           string `mapstructure:"token"`
	Org             string `mapstructure:"org"`
	Bucket          string `mapstructure:"bucket"`
	BatchSize       int    `mapstructure:"batch_size"`
	FlushIntervalMS int    `mapstructure:"flush_interval_ms"`
}

// DefaultConfig returns the flux defaults applied before unmarshaling.
// Disabled by default: forwarding requires a reachable InfluxDB.
func DefaultConfig() Config {
	return Config{
		URL:             "http://localhost:8086",
		Org:             "fleetbridge",
		Bucket:          "device_metrics",
		BatchSize:       100,
		FlushIntervalMS: 1000,
	}
}

// Module implements the InfluxDB forwarder plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	client   influxdb2.Client
	writeAPI api.WriteAPI
	wg       sync.WaitGroup

	mu        sync.RWMutex
	connected bool
}

// New creates the flux module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "flux",
		Version:      "0.1.0",
		Description:  "Forwards device heartbeat metrics to InfluxDB",
		Dependencies: []string{"vitals"},
		Roles:        []string{roles.RoleTelemetry},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

// Init connects and pings the InfluxDB server. A connection failure is an
// Init error on purpose: the registry disables an optional plugin whose
// Init fails, which is exactly the wanted behavior for a missing sink.
func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return err
		}
	}

	if !m.cfg.Enabled {
		m.logger.Info("flux module disabled")
		return nil
	}

	batchSize := m.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := m.cfg.FlushIntervalMS
	if flushInterval <= 0 {
		flushInterval = 1000
	}
	m.client = influxdb2.NewClientWithOptions(m.cfg.URL, m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)),
	)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := m.client.Ping(pingCtx)
	if err != nil {
		m.client.Close()
		m.client = nil
		return fmt.Errorf("influxdb ping %s: %w", m.cfg.URL, err)
	}
	if !healthy {
		m.client.Close()
		m.client = nil
		return fmt.Errorf("influxdb at %s reports unhealthy", m.cfg.URL)
	}

	m.writeAPI = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	// Writes are async; failures surface on this channel. The channel
	// closes when the client does.
	m.wg.Add(1)
	go m.drainWriteErrors(m.writeAPI.Errors())

	m.logger.Info("flux module initialized",
		zap.String("url", m.cfg.URL),
		zap.String("org", m.cfg.Org),
		zap.String("bucket", m.cfg.Bucket),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	if m.client != nil {
		m.writeAPI.Flush()
		m.client.Close()
		m.client = nil
	}
	m.wg.Wait()
	return nil
}

func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if !m.cfg.Enabled {
		return plugin.HealthStatus{Status: "healthy", Message: "disabled"}
	}
	if !m.isConnected() {
		return plugin.HealthStatus{Status: "degraded", Message: "not connected"}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Details: map[string]string{"url": m.cfg.URL, "bucket": m.cfg.Bucket},
	}
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: vitals.TopicMetricsUpdated, Handler: m.onMetrics},
	}
}

func (m *Module) onMetrics(_ context.Context, event plugin.Event) {
	ev, ok := event.Payload.(vitals.MetricsEvent)
	if !ok || !m.isConnected() {
		return
	}

	fields := map[string]any{}
	if ev.Metrics.CPUPercent != nil {
		fields["cpu_percent"] = *ev.Metrics.CPUPercent
	}
	if ev.Metrics.MemPercent != nil {
		fields["mem_percent"] = *ev.Metrics.MemPercent
	}
	if ev.Metrics.TempCelsius != nil {
		fields["temp_celsius"] = *ev.Metrics.TempCelsius
	}
	for name, value := range ev.Metrics.Readings {
		fields[name] = value
	}
	if len(fields) == 0 {
		return
	}

	tags := map[string]string{"device_id": ev.DeviceID}
	if ev.Category != "" {
		tags["category"] = string(ev.Category)
	}
	m.writeAPI.WritePoint(write.NewPoint("device_metrics", tags, fields, ev.At))
}

// Flush blocks until buffered points are sent. Used at shutdown.
func (m *Module) Flush() {
	if m.isConnected() {
		m.writeAPI.Flush()
	}
}

func (m *Module) drainWriteErrors(errs <-chan error) {
	defer m.wg.Done()
	for err := range errs {
		m.logger.Warn("influxdb write failed", zap.Error(err))
	}
}

func (m *Module) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Package vitals tracks device liveness from pushed heartbeats. Devices are
// never polled: edge computers and battery-powered sensors POST heartbeats
// on their own cadence and a sweep loop flips them offline when the
// category's threshold passes without one. Liveness here is independent of
// the SSH connection pool; a device can be online (recent heartbeat) while
// no transport to it exists, and vice versa.
package vitals

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/roster"
	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin            = (*Module)(nil)
	_ plugin.HTTPProvider      = (*Module)(nil)
	_ plugin.HealthChecker     = (*Module)(nil)
	_ plugin.EventSubscriber   = (*Module)(nil)
	_ roles.MonitoringProvider = (*Module)(nil)
)

// Config holds the vitals module configuration.
type Config struct {
	EdgeOfflineThreshold   time.Duration `mapstructure:"edge_offline_threshold"`
	SensorOfflineThreshold time.Duration `mapstructure:"sensor_offline_threshold"`
	SweepInterval          time.Duration `mapstructure:"sweep_interval"`
}

// DefaultConfig returns the default vitals configuration.
func DefaultConfig() Config {
	return Config{
		EdgeOfflineThreshold:   60 * time.Second,
		SensorOfflineThreshold: 5 * time.Minute,
		SweepInterval:          5 * time.Second,
	}
}

// Health is one device's row in the liveness table.
type Health struct {
	DeviceID        string                `json:"device_id"`
	Category        models.DeviceCategory `json:"category"`
	Online          bool                  `json:"online"`
	LastHeartbeatAt *time.Time            `json:"last_heartbeat_at,omitempty"`
	Metrics         models.Metrics        `json:"metrics"`
}

// entry is the in-memory liveness record for one device. online is the last
// emitted state, so flips publish exactly one event each.
type entry struct {
	category models.DeviceCategory
	last     time.Time
	seen     bool
	online   bool
	metrics  models.Metrics
}

// Module implements the vitals heartbeat monitor plugin.
type Module struct {
	logger    *zap.Logger
	bus       plugin.EventBus
	cfg       Config
	inventory roles.InventoryProvider

	mu    sync.Mutex
	table map[string]*entry

	// now is replaceable in tests.
	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new vitals plugin instance.
func New() *Module {
	return &Module{
		cfg:   DefaultConfig(),
		table: make(map[string]*entry),
		now:   time.Now,
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "vitals",
		Version:      "0.1.0",
		Description:  "Push-based device liveness and metrics tracking",
		Dependencies: []string{"roster"},
		Roles:        []string{roles.RoleMonitoring},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

// SetInventory overrides the device source. Used by tests; production
// wiring resolves the inventory role during Init.
func (m *Module) SetInventory(inv roles.InventoryProvider) {
	m.inventory = inv
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return err
		}
	}
	if m.cfg.SweepInterval <= 0 {
		m.cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	if m.inventory == nil && deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(roles.RoleInventory) {
			if inv, ok := p.(roles.InventoryProvider); ok {
				m.inventory = inv
				break
			}
		}
	}

	m.logger.Info("vitals module initialized",
		zap.Duration("edge_threshold", m.cfg.EdgeOfflineThreshold),
		zap.Duration("sensor_threshold", m.cfg.SensorOfflineThreshold),
		zap.Duration("sweep_interval", m.cfg.SweepInterval),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.seedFromInventory(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.sweep(runCtx)
			}
		}
	}()

	m.logger.Info("vitals module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("vitals module stopped")
	return nil
}

// Subscriptions keeps the liveness table in step with the roster.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: roster.TopicDeviceRegistered, Handler: m.onDeviceRegistered},
		{Topic: roster.TopicDeviceUpdated, Handler: m.onDeviceRegistered},
		{Topic: roster.TopicDeviceRemoved, Handler: m.onDeviceRemoved},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.Lock()
	total := len(m.table)
	online := 0
	for _, e := range m.table {
		if e.online {
			online++
		}
	}
	m.mu.Unlock()

	return plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"devices": strconv.Itoa(total),
			"online":  strconv.Itoa(online),
		},
	}
}

// Record registers a heartbeat for a device, merging any metrics carried in
// the payload. The first heartbeat after an offline period flips the device
// online and publishes vitals.device.online.
func (m *Module) Record(ctx context.Context, deviceID string, payload map[string]any) error {
	if m.inventory == nil {
		return roles.ErrDeviceNotFound
	}
	device, err := m.inventory.DeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}

	metrics, dropped := parseMetrics(payload)
	if len(dropped) > 0 {
		m.logger.Debug("dropped malformed metrics fields",
			zap.String("device_id", deviceID),
			zap.Strings("fields", dropped),
		)
	}

	now := m.now().UTC()

	m.mu.Lock()
	e, ok := m.table[deviceID]
	if !ok {
		e = &entry{}
		m.table[deviceID] = e
	}
	e.category = device.Category
	e.last = now
	e.metrics.Merge(metrics)
	flipped := !e.online
	e.online = true
	e.seen = true
	snapshot := e.metrics
	m.mu.Unlock()

	heartbeatsTotal.WithLabelValues(string(device.Category)).Inc()

	if flipped {
		m.setOnlineGauges()
		m.publishStatus(ctx, StatusEvent{
			DeviceID:        deviceID,
			Category:        device.Category,
			Online:          true,
			LastHeartbeatAt: now,
		})
		m.logger.Info("device online",
			zap.String("device_id", deviceID),
			zap.String("category", string(device.Category)),
		)
	}

	m.publish(ctx, TopicMetricsUpdated, MetricsEvent{
		DeviceID: deviceID,
		Category: device.Category,
		Metrics:  snapshot,
		At:       now,
	})
	return nil
}

// Online implements roles.MonitoringProvider from the liveness table.
func (m *Module) Online(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[deviceID]
	return ok && e.online
}

// Status implements roles.MonitoringProvider.
func (m *Module) Status(_ context.Context, deviceID string) (*roles.MonitorStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[deviceID]
	if !ok {
		return nil, roles.ErrDeviceNotFound
	}
	st := &roles.MonitorStatus{
		DeviceID: deviceID,
		Online:   e.online,
	}
	if e.seen {
		st.LastHeartbeat = e.last
	}
	return st, nil
}

// Snapshot returns the liveness row for one device.
func (m *Module) Snapshot(deviceID string) (*Health, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.table[deviceID]
	if !ok {
		return nil, roles.ErrDeviceNotFound
	}
	h := healthFromEntry(deviceID, e)
	return &h, nil
}

// SnapshotAll returns liveness rows for every tracked device, ordered by id.
func (m *Module) SnapshotAll() []Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Health, 0, len(m.table))
	for id, e := range m.table {
		out = append(out, healthFromEntry(id, e))
	}
	sortHealth(out)
	return out
}

// sweep flips devices offline whose category threshold has passed without a
// heartbeat. Runs on the sweep ticker; events are published outside the lock.
func (m *Module) sweep(ctx context.Context) {
	now := m.now().UTC()

	var flips []StatusEvent
	m.mu.Lock()
	for id, e := range m.table {
		if !e.seen || !e.online {
			continue
		}
		if now.Sub(e.last) >= m.threshold(e.category) {
			e.online = false
			flips = append(flips, StatusEvent{
				DeviceID:        id,
				Category:        e.category,
				Online:          false,
				LastHeartbeatAt: e.last,
			})
		}
	}
	m.mu.Unlock()

	if len(flips) == 0 {
		return
	}
	m.setOnlineGauges()
	for _, ev := range flips {
		m.publishStatus(ctx, ev)
		m.logger.Warn("device offline",
			zap.String("device_id", ev.DeviceID),
			zap.String("category", string(ev.Category)),
			zap.Time("last_heartbeat_at", ev.LastHeartbeatAt),
		)
	}
}

func (m *Module) threshold(c models.DeviceCategory) time.Duration {
	if c == models.CategoryIoTSensor {
		return m.cfg.SensorOfflineThreshold
	}
	return m.cfg.EdgeOfflineThreshold
}

// seedFromInventory pre-creates table rows for registered devices so status
// listings cover devices that have never sent a heartbeat. Seeded rows are
// offline but emit no offline event.
func (m *Module) seedFromInventory(ctx context.Context) {
	if m.inventory == nil {
		return
	}
	devices, err := m.inventory.Devices(ctx)
	if err != nil {
		m.logger.Warn("could not seed liveness table", zap.Error(err))
		return
	}

	m.mu.Lock()
	for _, d := range devices {
		if _, ok := m.table[d.ID]; !ok {
			m.table[d.ID] = &entry{category: d.Category}
		}
	}
	m.mu.Unlock()
}

func (m *Module) onDeviceRegistered(_ context.Context, e plugin.Event) {
	payload, ok := e.Payload.(roster.DeviceEvent)
	if !ok || payload.Device == nil {
		return
	}
	m.mu.Lock()
	if cur, exists := m.table[payload.Device.ID]; exists {
		cur.category = payload.Device.Category
	} else {
		m.table[payload.Device.ID] = &entry{category: payload.Device.Category}
	}
	m.mu.Unlock()
}

func (m *Module) onDeviceRemoved(_ context.Context, e plugin.Event) {
	payload, ok := e.Payload.(roster.DeviceRemovedEvent)
	if !ok {
		return
	}
	m.mu.Lock()
	delete(m.table, payload.DeviceID)
	m.mu.Unlock()
	m.setOnlineGauges()
}

// publishStatus emits a liveness flip synchronously so downstream fan-out
// sees flips in the order they happened.
func (m *Module) publishStatus(ctx context.Context, ev StatusEvent) {
	topic := TopicDeviceOffline
	if ev.Online {
		topic = TopicDeviceOnline
	}
	m.publish(ctx, topic, ev)
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, plugin.Event{
		Topic:     topic,
		Source:    "vitals",
		Timestamp: m.now().UTC(),
		Payload:   payload,
	})
}

func (m *Module) setOnlineGauges() {
	m.mu.Lock()
	counts := map[models.DeviceCategory]float64{
		models.CategoryEdgeComputer: 0,
		models.CategoryIoTSensor:    0,
	}
	for _, e := range m.table {
		if e.online {
			counts[e.category]++
		}
	}
	m.mu.Unlock()

	for cat, n := range counts {
		devicesOnline.WithLabelValues(string(cat)).Set(n)
	}
}

func healthFromEntry(id string, e *entry) Health {
	h := Health{
		DeviceID: id,
		Category: e.category,
		Online:   e.online,
		Metrics:  e.metrics,
	}
	if e.seen {
		last := e.last
		h.LastHeartbeatAt = &last
	}
	return h
}

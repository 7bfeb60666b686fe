package flux

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/config"
	"github.com/fleetbridge/fleetbridge/internal/event"
	"github.com/fleetbridge/fleetbridge/internal/vitals"
	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/plugin/plugintest"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

// fakeInflux stands in for an InfluxDB server: it answers the client's
// health ping and records line-protocol write bodies.
type fakeInflux struct {
	srv *httptest.Server

	mu     sync.Mutex
	bodies []string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ping":
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/api/v2/write"):
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.bodies = append(f.bodies, string(body))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) lines() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

func newTestFlux(t *testing.T, url string) (*Module, *event.Bus) {
	t.Helper()

	v := viper.New()
	v.Set("enabled", true)
	v.Set("url", url)
	v.Set("org", "fleetbridge")
	v.Set("bucket", "device_metrics")
	v.Set("batch_size", 1)
	v.Set("flush_interval_ms", 50)

	bus := event.NewBus(zap.NewNop())
	m := New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Bus:    bus,
		Config: config.New(v),
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, sub := range m.Subscriptions() {
		bus.Subscribe(sub.Topic, sub.Handler)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m, bus
}

func waitForLines(t *testing.T, f *fakeInflux, marker string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.lines(); strings.Contains(got, marker) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in write bodies, got:\n%s", marker, f.lines())
	return ""
}

func fptr(v float64) *float64 { return &v }

func TestFlux_writes_metric_points(t *testing.T) {
	influx := newFakeInflux(t)
	m, bus := newTestFlux(t, influx.srv.URL)

	if h := m.Health(context.Background()); h.Status != "healthy" {
		t.Fatalf("health = %+v, want healthy", h)
	}

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	err := bus.Publish(context.Background(), plugin.Event{
		Topic:  vitals.TopicMetricsUpdated,
		Source: "vitals",
		Payload: vitals.MetricsEvent{
			DeviceID: "edge-01",
			Category: models.CategoryEdgeComputer,
			Metrics: models.Metrics{
				CPUPercent: fptr(12.5),
				MemPercent: fptr(40),
				Readings:   map[string]float64{"humidity": 55.5},
			},
			At: at,
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := waitForLines(t, influx, "device_metrics")
	for _, want := range []string{
		"device_id=edge-01",
		"category=edge_computer",
		"cpu_percent=12.5",
		"mem_percent=40",
		"humidity=55.5",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("write body missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "temp_celsius") {
		t.Errorf("nil temperature should not produce a field:\n%s", got)
	}
}

func TestFlux_skips_events_without_fields(t *testing.T) {
	influx := newFakeInflux(t)
	_, bus := newTestFlux(t, influx.srv.URL)

	// No gauges and no readings: nothing worth a point.
	_ = bus.Publish(context.Background(), plugin.Event{
		Topic: vitals.TopicMetricsUpdated,
		Payload: vitals.MetricsEvent{
			DeviceID: "sensor-empty",
			Category: models.CategoryIoTSensor,
			At:       time.Now(),
		},
	})
	_ = bus.Publish(context.Background(), plugin.Event{
		Topic: vitals.TopicMetricsUpdated,
		Payload: vitals.MetricsEvent{
			DeviceID: "sensor-full",
			Category: models.CategoryIoTSensor,
			Metrics:  models.Metrics{Readings: map[string]float64{"lux": 810}},
			At:       time.Now(),
		},
	})

	got := waitForLines(t, influx, "sensor-full")
	if strings.Contains(got, "sensor-empty") {
		t.Errorf("empty metrics event should be dropped:\n%s", got)
	}
}

func TestFlux_disabled_module_is_inert(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	m := New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Bus:    bus,
		Config: config.New(viper.New()),
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, sub := range m.Subscriptions() {
		bus.Subscribe(sub.Topic, sub.Handler)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if h := m.Health(context.Background()); h.Status != "healthy" || h.Message != "disabled" {
		t.Fatalf("health = %+v, want healthy/disabled", h)
	}

	// Events must be ignored without a client, not panic.
	_ = bus.Publish(context.Background(), plugin.Event{
		Topic: vitals.TopicMetricsUpdated,
		Payload: vitals.MetricsEvent{
			DeviceID: "edge-01",
			Metrics:  models.Metrics{CPUPercent: fptr(1)},
			At:       time.Now(),
		},
	})
	m.Flush()
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestFlux_init_fails_when_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	v := viper.New()
	v.Set("enabled", true)
	v.Set("url", url)

	m := New()
	deps := plugin.Dependencies{
		Logger: zap.NewNop(),
		Bus:    event.NewBus(zap.NewNop()),
		Config: config.New(v),
	}
	if err := m.Init(context.Background(), deps); err == nil {
		t.Fatal("Init should fail when InfluxDB is unreachable")
	}
}

func TestModule_info_and_subscriptions(t *testing.T) {
	m := New()
	info := m.Info()
	if info.Name != "flux" {
		t.Errorf("Name = %q", info.Name)
	}
	if len(info.Dependencies) != 1 || info.Dependencies[0] != "vitals" {
		t.Errorf("Dependencies = %v", info.Dependencies)
	}
	hasRole := false
	for _, r := range info.Roles {
		if r == roles.RoleTelemetry {
			hasRole = true
		}
	}
	if !hasRole {
		t.Errorf("Roles = %v, want telemetry", info.Roles)
	}

	subs := m.Subscriptions()
	if len(subs) != 1 || subs[0].Topic != vitals.TopicMetricsUpdated {
		t.Fatalf("Subscriptions = %+v", subs)
	}
}

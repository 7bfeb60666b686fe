package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/config"
	"github.com/fleetbridge/fleetbridge/internal/event"
	"github.com/fleetbridge/fleetbridge/internal/store"
	"github.com/fleetbridge/fleetbridge/internal/testutil"
	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// newTestModule builds an initialized roster module backed by a temp
// database. An empty passphrase leaves the credential store sealed.
func newTestModule(t *testing.T, passphrase string) (*Module, *event.Bus) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	v := viper.New()
	v.Set("passphrase", passphrase)
	bus := event.NewBus(zap.NewNop())

	m := New()
	deps := plugin.Dependencies{
		Config: config.New(v),
		Logger: zap.NewNop(),
		Bus:    bus,
		Store:  s,
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, bus
}

func testDevice(id string) *models.Device {
	d := testutil.NewDevice(testutil.WithID(id), testutil.WithName("Test device "+id))
	return &d
}

func TestRegister_creates_device(t *testing.T) {
	m, bus := newTestModule(t, "")

	events := make(chan plugin.Event, 1)
	bus.Subscribe(TopicDeviceRegistered, func(_ context.Context, e plugin.Event) {
		events <- e
	})

	if err := m.Register(context.Background(), testDevice("edge-01"), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := m.DeviceByID(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("DeviceByID: %v", err)
	}
	if got.Name != "Test device edge-01" || got.Category != models.CategoryEdgeComputer {
		t.Errorf("stored device mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on registration")
	}

	select {
	case e := <-events:
		payload, ok := e.Payload.(DeviceEvent)
		if !ok {
			t.Fatalf("event payload type %T, want DeviceEvent", e.Payload)
		}
		if payload.Device.ID != "edge-01" {
			t.Errorf("event device id = %q, want edge-01", payload.Device.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no roster.device.registered event")
	}
}

func TestRegister_update_emits_updated(t *testing.T) {
	m, bus := newTestModule(t, "")

	updated := make(chan plugin.Event, 1)
	bus.Subscribe(TopicDeviceUpdated, func(_ context.Context, e plugin.Event) {
		updated <- e
	})

	d := testDevice("edge-02")
	if err := m.Register(context.Background(), d, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.Notes = "moved to rack B"
	if err := m.Register(context.Background(), d, nil); err != nil {
		t.Fatalf("Register update: %v", err)
	}

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("no roster.device.updated event on re-registration")
	}

	got, err := m.DeviceByID(context.Background(), "edge-02")
	if err != nil {
		t.Fatalf("DeviceByID: %v", err)
	}
	if got.Notes != "moved to rack B" {
		t.Errorf("notes = %q, want updated value", got.Notes)
	}
}

func TestRegister_rejects_invalid_category(t *testing.T) {
	m, _ := newTestModule(t, "")

	d := testDevice("edge-03")
	d.Category = "toaster"
	if err := m.Register(context.Background(), d, nil); err == nil {
		t.Error("Register accepted an invalid category")
	}
}

func TestRegister_defaults_port(t *testing.T) {
	m, _ := newTestModule(t, "")

	d := testDevice("edge-04")
	d.Port = 0
	if err := m.Register(context.Background(), d, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := m.DeviceByID(context.Background(), "edge-04")
	if err != nil {
		t.Fatalf("DeviceByID: %v", err)
	}
	if got.Port != 22 {
		t.Errorf("port = %d, want default 22", got.Port)
	}
}

func TestDeviceByID_unknown_returns_not_found(t *testing.T) {
	m, _ := newTestModule(t, "")

	if _, err := m.DeviceByID(context.Background(), "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeviceByID(ghost): got %v, want ErrDeviceNotFound", err)
	}
}

func TestRemove_deletes_device_and_emits_event(t *testing.T) {
	m, bus := newTestModule(t, "")

	removed := make(chan plugin.Event, 1)
	bus.Subscribe(TopicDeviceRemoved, func(_ context.Context, e plugin.Event) {
		removed <- e
	})

	if err := m.Register(context.Background(), testDevice("edge-05"), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Remove(context.Background(), "edge-05"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	select {
	case e := <-removed:
		payload := e.Payload.(DeviceRemovedEvent)
		if payload.DeviceID != "edge-05" {
			t.Errorf("removed event device = %q, want edge-05", payload.DeviceID)
		}
	case <-time.After(time.Second):
		t.Fatal("no roster.device.removed event")
	}

	if _, err := m.DeviceByID(context.Background(), "edge-05"); !errors.Is(err, ErrDeviceNotFound) {
		t.Error("device still present after Remove")
	}
}

func TestRemove_unknown_returns_not_found(t *testing.T) {
	m, _ := newTestModule(t, "")

	if err := m.Remove(context.Background(), "ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Remove(ghost): got %v, want ErrDeviceNotFound", err)
	}
}

func TestCredential_seal_and_open_roundtrip(t *testing.T) {
	m, _ := newTestModule(t, "hunter2")

	cred := &models.Credential{Kind: models.CredentialPassword, Secret: "s3cret"}
	if err := m.Register(context.Background(), testDevice("edge-06"), cred); err != nil {
		t.Fatalf("Register with credential: %v", err)
	}

	got, err := m.CredentialForDevice(context.Background(), "edge-06")
	if err != nil {
		t.Fatalf("CredentialForDevice: %v", err)
	}
	if got.Kind != models.CredentialPassword || got.Secret != "s3cret" {
		t.Errorf("credential mismatch: kind=%q", got.Kind)
	}
}

func TestCredential_sealed_without_passphrase(t *testing.T) {
	m, _ := newTestModule(t, "")

	cred := &models.Credential{Kind: models.CredentialPassword, Secret: "s3cret"}
	err := m.Register(context.Background(), testDevice("edge-07"), cred)
	if !errors.Is(err, ErrSealed) {
		t.Errorf("Register with credential while sealed: got %v, want ErrSealed", err)
	}
}

func TestCredential_missing_returns_not_found(t *testing.T) {
	m, _ := newTestModule(t, "hunter2")

	if err := m.Register(context.Background(), testDevice("edge-08"), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := m.CredentialForDevice(context.Background(), "edge-08"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("CredentialForDevice without stored secret: got %v, want ErrDeviceNotFound", err)
	}
}

func TestRemove_cascades_credential(t *testing.T) {
	m, _ := newTestModule(t, "hunter2")

	cred := &models.Credential{Kind: models.CredentialPassword, Secret: "s3cret"}
	if err := m.Register(context.Background(), testDevice("edge-09"), cred); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Remove(context.Background(), "edge-09"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := m.CredentialForDevice(context.Background(), "edge-09"); !errors.Is(err, ErrDeviceNotFound) {
		t.Error("credential survived device removal")
	}
}

// testMux mounts the module's routes the way the HTTP server does.
func testMux(t *testing.T, m *Module) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	for _, rt := range m.Routes() {
		mux.HandleFunc(rt.Method+" /api/v1/roster"+rt.Path, rt.Handler)
	}
	return mux
}

func TestHandleRegisterDevice_roundtrip(t *testing.T) {
	m, _ := newTestModule(t, "hunter2")
	mux := testMux(t, m)

	body := `{"name":"Lab gateway","category":"edge_computer","host":"10.0.0.5","user":"fleet","credential":{"kind":"password","secret":"p"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/roster/devices/edge-10", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(`"secret"`)) {
		t.Error("response echoed the credential secret")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/roster/devices/edge-10", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var got models.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Host != "10.0.0.5" {
		t.Errorf("host = %q, want 10.0.0.5", got.Host)
	}
}

func TestHandleRegisterDevice_invalid_category(t *testing.T) {
	m, _ := newTestModule(t, "")
	mux := testMux(t, m)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/roster/devices/x",
		bytes.NewBufferString(`{"name":"x","category":"fridge"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
}

func TestHandleRegisterDevice_sealed_store(t *testing.T) {
	m, _ := newTestModule(t, "")
	mux := testMux(t, m)

	body := `{"name":"x","category":"edge_computer","credential":{"kind":"password","secret":"p"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/roster/devices/x", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while sealed", rec.Code)
	}
}

func TestHandleListDevices_empty(t *testing.T) {
	m, _ := newTestModule(t, "")
	mux := testMux(t, m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roster/devices", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("empty list body = %q, want []", got)
	}
}

func TestHandleRemoveDevice_unknown(t *testing.T) {
	m, _ := newTestModule(t, "")
	mux := testMux(t, m)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/roster/devices/ghost", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealth_reports_device_count(t *testing.T) {
	m, _ := newTestModule(t, "")

	if err := m.Register(context.Background(), testDevice("edge-11"), nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h := m.Health(context.Background())
	if h.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", h.Status)
	}
	if h.Details["devices"] != "1" {
		t.Errorf("device count = %q, want 1", h.Details["devices"])
	}
}

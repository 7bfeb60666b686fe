package uplink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/event"
	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// --- Fakes ---

type fakeTransport struct {
	mu     sync.Mutex
	closed bool
	kaErr  error
	kaSeen int
}

func (t *fakeTransport) KeepAlive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kaSeen++
	return t.kaErr
}

func (t *fakeTransport) setKeepAliveErr(err error) {
	t.mu.Lock()
	t.kaErr = err
	t.mu.Unlock()
}

func (t *fakeTransport) OpenTerminal(_, _ int) (TerminalChannel, error) {
	return nil, errors.New("fake transport has no terminal")
}

func (t *fakeTransport) Exec(_ context.Context, _ string) (ExecResult, error) {
	return ExecResult{}, errors.New("fake transport has no exec")
}

func (t *fakeTransport) Files() (FileClient, error) {
	return nil, errors.New("fake transport has no files")
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	err        error
	delay      time.Duration
	lastTarget Target
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, target Target) (Transport, error) {
	d.mu.Lock()
	d.dials++
	d.lastTarget = target
	err := d.err
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	t := &fakeTransport{}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeInventory struct {
	devices map[string]models.Device
}

func (f *fakeInventory) Devices(_ context.Context) ([]models.Device, error) {
	out := make([]models.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeInventory) DeviceByID(_ context.Context, id string) (*models.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return nil, roles.ErrDeviceNotFound
	}
	return &d, nil
}

type fakeCredentials struct {
	creds map[string]*models.Credential
}

func (f *fakeCredentials) CredentialForDevice(_ context.Context, deviceID string) (*models.Credential, error) {
	c, ok := f.creds[deviceID]
	if !ok {
		return nil, roles.ErrDeviceNotFound
	}
	return c, nil
}

// --- Fixtures ---

func poolDevice(id string) models.Device {
	return models.Device{
		ID:       id,
		Name:     id,
		Category: models.CategoryEdgeComputer,
		Host:     "10.0.0.5",
		Port:     2222,
		User:     "pi",
	}
}

func testPoolConfig() Config {
	cfg := DefaultConfig()
	cfg.ProbeOnFailure = false
	cfg.KeepaliveInterval = time.Hour
	cfg.IdleTTL = time.Hour
	cfg.BackoffBase = 100 * time.Millisecond
	cfg.BackoffCap = time.Second
	return cfg
}

func newTestPool(t *testing.T, cfg Config, dialer Dialer, devices ...models.Device) (*Pool, *event.Bus) {
	t.Helper()

	inv := &fakeInventory{devices: make(map[string]models.Device)}
	creds := &fakeCredentials{creds: make(map[string]*models.Credential)}
	for _, d := range devices {
		inv.devices[d.ID] = d
		creds.creds[d.ID] = &models.Credential{Kind: models.CredentialPassword, Secret: "s3cret"}
	}

	bus := event.NewBus(zap.NewNop())
	p := NewPool(cfg, dialer, inv, creds, bus, zap.NewNop())
	t.Cleanup(p.CloseAll)
	return p, bus
}

func collectTopic(bus *event.Bus, topic string) <-chan plugin.Event {
	ch := make(chan plugin.Event, 16)
	bus.Subscribe(topic, func(_ context.Context, e plugin.Event) {
		ch <- e
	})
	return ch
}

func waitEvent(t *testing.T, ch <-chan plugin.Event, timeout time.Duration) plugin.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return plugin.Event{}
	}
}

// --- Tests ---

func TestAcquire_concurrent_demand_shares_one_dial(t *testing.T) {
	dialer := &fakeDialer{delay: 50 * time.Millisecond}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	const callers = 10
	leases := make([]Lease, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leases[i], errs[i] = p.Acquire(context.Background(), "edge-01")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}

	info, ok := p.Info("edge-01")
	if !ok {
		t.Fatal("expected connection info")
	}
	if info.State != StateReady {
		t.Errorf("state = %q, want %q", info.State, StateReady)
	}
	if info.Leases != callers {
		t.Errorf("leases = %d, want %d", info.Leases, callers)
	}

	for _, l := range leases {
		l.Release()
	}
	if info, _ := p.Info("edge-01"); info.Leases != 0 {
		t.Errorf("leases after release = %d, want 0", info.Leases)
	}
}

func TestAcquire_unknown_device_fails_before_dialing(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	_, err := p.Acquire(context.Background(), "ghost")
	if !errors.Is(err, roles.ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
	if got := dialer.dialCount(); got != 0 {
		t.Errorf("dials = %d, want 0", got)
	}
}

func TestAcquire_dial_target_built_from_roster(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	dialer.mu.Lock()
	target := dialer.lastTarget
	dialer.mu.Unlock()

	if target.Host != "10.0.0.5" || target.Port != 2222 || target.User != "pi" {
		t.Errorf("target = %s@%s:%d, want pi@10.0.0.5:2222", target.User, target.Host, target.Port)
	}
	if target.Credential == nil || target.Credential.Secret != "s3cret" {
		t.Error("expected stored credential on dial target")
	}
}

func TestAcquire_backoff_fails_fast_with_retry_hint(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("dial tcp: connection refused")}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	_, err := p.Acquire(context.Background(), "edge-01")
	var first *ConnectError
	if !errors.As(err, &first) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
	if first.Reason != ReasonUnreachable {
		t.Errorf("reason = %q, want %q", first.Reason, ReasonUnreachable)
	}
	if first.RetryAfter <= 0 {
		t.Errorf("retry after = %v, want > 0", first.RetryAfter)
	}

	// Still inside the backoff window: no second dial happens.
	_, err = p.Acquire(context.Background(), "edge-01")
	var second *ConnectError
	if !errors.As(err, &second) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
	if second.RetryAfter <= 0 {
		t.Errorf("retry after = %v, want > 0", second.RetryAfter)
	}
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestAcquire_redials_after_backoff_expires(t *testing.T) {
	cfg := testPoolConfig()
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffCap = 20 * time.Millisecond
	dialer := &fakeDialer{err: errors.New("dial tcp: connection refused")}
	p, _ := newTestPool(t, cfg, dialer, poolDevice("edge-01"))

	if _, err := p.Acquire(context.Background(), "edge-01"); err == nil {
		t.Fatal("expected first acquire to fail")
	}
	// Jitter tops out at 1.2x the capped wait.
	time.Sleep(50 * time.Millisecond)

	dialer.mu.Lock()
	dialer.err = nil
	dialer.mu.Unlock()

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("acquire after backoff: %v", err)
	}
	lease.Release()
	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestAcquire_auth_failure_reported_as_auth(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("ssh: unable to authenticate, attempted methods [password]")}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	_, err := p.Acquire(context.Background(), "edge-01")
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectError", err)
	}
	if connErr.Reason != ReasonAuth {
		t.Errorf("reason = %q, want %q", connErr.Reason, ReasonAuth)
	}
}

func TestKeepalive_misses_degrade_then_close(t *testing.T) {
	cfg := testPoolConfig()
	cfg.KeepaliveInterval = 20 * time.Millisecond
	cfg.KeepaliveMaxMisses = 3
	dialer := &fakeDialer{}
	p, bus := newTestPool(t, cfg, dialer, poolDevice("edge-01"))

	degraded := collectTopic(bus, TopicConnDegraded)
	closed := collectTopic(bus, TopicConnClosed)

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ft := lease.Transport().(*fakeTransport)
	ft.setKeepAliveErr(errors.New("request timed out"))

	e := waitEvent(t, degraded, 2*time.Second)
	payload := e.Payload.(ConnEvent)
	if payload.DeviceID != "edge-01" || payload.State != StateDegraded {
		t.Errorf("degraded payload = %+v", payload)
	}

	e = waitEvent(t, closed, 2*time.Second)
	payload = e.Payload.(ConnEvent)
	if payload.Reason != "keepalive timeout" {
		t.Errorf("close reason = %q, want keepalive timeout", payload.Reason)
	}

	select {
	case <-lease.Done():
	case <-time.After(time.Second):
		t.Fatal("lease.Done not closed after keepalive teardown")
	}
	if !ft.isClosed() {
		t.Error("transport not closed after keepalive teardown")
	}
	if _, ok := p.Info("edge-01"); ok {
		t.Error("connection still registered after teardown")
	}
}

func TestKeepalive_recovery_returns_to_ready(t *testing.T) {
	cfg := testPoolConfig()
	cfg.KeepaliveInterval = 20 * time.Millisecond
	cfg.KeepaliveMaxMisses = 10
	dialer := &fakeDialer{}
	p, bus := newTestPool(t, cfg, dialer, poolDevice("edge-01"))

	degraded := collectTopic(bus, TopicConnDegraded)
	ready := collectTopic(bus, TopicConnReady)

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()
	waitEvent(t, ready, time.Second)

	ft := lease.Transport().(*fakeTransport)
	ft.setKeepAliveErr(errors.New("request timed out"))
	waitEvent(t, degraded, 2*time.Second)

	ft.setKeepAliveErr(nil)
	e := waitEvent(t, ready, 2*time.Second)
	payload := e.Payload.(ConnEvent)
	if payload.Reason != "keepalive recovered" {
		t.Errorf("ready reason = %q, want keepalive recovered", payload.Reason)
	}

	info, ok := p.Info("edge-01")
	if !ok || info.State != StateReady {
		t.Errorf("state = %+v, want ready", info)
	}
}

func TestIdleTTL_closes_unused_transport(t *testing.T) {
	cfg := testPoolConfig()
	cfg.IdleTTL = 30 * time.Millisecond
	dialer := &fakeDialer{}
	p, bus := newTestPool(t, cfg, dialer, poolDevice("edge-01"))

	closed := collectTopic(bus, TopicConnClosed)

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ft := lease.Transport().(*fakeTransport)
	lease.Release()

	e := waitEvent(t, closed, 2*time.Second)
	if payload := e.Payload.(ConnEvent); payload.Reason != "idle timeout" {
		t.Errorf("close reason = %q, want idle timeout", payload.Reason)
	}
	if !ft.isClosed() {
		t.Error("transport not closed after idle timeout")
	}
}

func TestIdleTTL_held_lease_keeps_transport_open(t *testing.T) {
	cfg := testPoolConfig()
	cfg.IdleTTL = 30 * time.Millisecond
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, cfg, dialer, poolDevice("edge-01"))

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	time.Sleep(100 * time.Millisecond)
	info, ok := p.Info("edge-01")
	if !ok || info.State != StateReady {
		t.Errorf("state = %+v, want ready while lease held", info)
	}
}

func TestClose_force_drops_leases_and_allows_redial(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ft := lease.Transport().(*fakeTransport)

	p.Close("edge-01")

	select {
	case <-lease.Done():
	case <-time.After(time.Second):
		t.Fatal("lease.Done not closed after force close")
	}
	if !ft.isClosed() {
		t.Error("transport not closed")
	}

	// Closing is not a backoff failure; the next acquire dials fresh.
	lease2, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	lease2.Release()
	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestCloseAll_rejects_further_acquires(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_ = lease

	p.CloseAll()

	if _, err := p.Acquire(context.Background(), "edge-01"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
	if got := len(p.States()); got != 0 {
		t.Errorf("states = %d, want 0", got)
	}
}

func TestAcquire_canceled_context_releases_abandoned_lease(t *testing.T) {
	cfg := testPoolConfig()
	cfg.IdleTTL = 30 * time.Millisecond
	dialer := &fakeDialer{delay: 50 * time.Millisecond}
	p, bus := newTestPool(t, cfg, dialer, poolDevice("edge-01"))

	closed := collectTopic(bus, TopicConnClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, "edge-01"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	// The dial still completes; the abandoned lease is handed back and the
	// connection ages out instead of leaking.
	waitEvent(t, closed, 2*time.Second)
}

func TestStates_sorted_by_device(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-02"), poolDevice("edge-01"))

	l1, err := p.Acquire(context.Background(), "edge-02")
	if err != nil {
		t.Fatalf("Acquire edge-02: %v", err)
	}
	defer l1.Release()
	l2, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire edge-01: %v", err)
	}
	defer l2.Release()

	states := p.States()
	if len(states) != 2 {
		t.Fatalf("states = %d, want 2", len(states))
	}
	if states[0].DeviceID != "edge-01" || states[1].DeviceID != "edge-02" {
		t.Errorf("order = [%s %s], want [edge-01 edge-02]", states[0].DeviceID, states[1].DeviceID)
	}
}

func TestJitteredBackoff_bounds(t *testing.T) {
	base := 2 * time.Second
	limit := 60 * time.Second

	for failures := 1; failures <= 8; failures++ {
		wait := jitteredBackoff(base, limit, failures)
		ideal := float64(base) * float64(int(1)<<uint(failures-1))
		if ideal > float64(limit) {
			ideal = float64(limit)
		}
		lo := time.Duration(0.8 * ideal)
		hi := time.Duration(1.2 * ideal)
		if wait < lo || wait > hi {
			t.Errorf("failures=%d wait=%v, want within [%v, %v]", failures, wait, lo, hi)
		}
	}
}

func TestRelease_idempotent(t *testing.T) {
	dialer := &fakeDialer{}
	p, _ := newTestPool(t, testPoolConfig(), dialer, poolDevice("edge-01"))

	lease, err := p.Acquire(context.Background(), "edge-01")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lease.Release()
	lease.Release()

	info, ok := p.Info("edge-01")
	if !ok {
		t.Fatal("expected connection info")
	}
	if info.Leases != 0 {
		t.Errorf("leases = %d, want 0", info.Leases)
	}
}

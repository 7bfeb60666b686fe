package uplink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/models"
	"github.com/fleetbridge/fleetbridge/pkg/plugin"
	"github.com/fleetbridge/fleetbridge/pkg/roles"
	"go.uber.org/zap"
)

// Config controls dialing, liveness probing, and connection lifecycle.
type Config struct {
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	KeepaliveInterval  time.Duration `mapstructure:"keepalive_interval"`
	KeepaliveMaxMisses int           `mapstructure:"keepalive_max_misses"`
	IdleTTL            time.Duration `mapstructure:"idle_ttl"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffCap         time.Duration `mapstructure:"backoff_cap"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
	ProbeOnFailure     bool          `mapstructure:"probe_on_failure"`
	SSHConfigPath      string        `mapstructure:"ssh_config_path"`
}

// DefaultConfig returns the pool defaults applied before unmarshaling.
func DefaultConfig() Config {
	return Config{
		DialTimeout:        10 * time.Second,
		KeepaliveInterval:  15 * time.Second,
		KeepaliveMaxMisses: 3,
		IdleTTL:            10 * time.Minute,
		BackoffBase:        2 * time.Second,
		BackoffCap:         60 * time.Second,
		CommandTimeout:     30 * time.Second,
		ProbeOnFailure:     true,
	}
}

// Pool shares at most one transport per device. Acquire hands out leases
// against the shared transport; the transport closes when the last lease is
// released and the idle TTL expires, or when keepalives fail.
type Pool struct {
	cfg         Config
	logger      *zap.Logger
	bus         plugin.EventBus
	dialer      Dialer
	inventory   roles.InventoryProvider
	credentials roles.CredentialProvider

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

// NewPool builds a pool. The dialer is swappable so tests can run without a
// live SSH endpoint.
func NewPool(cfg Config, dialer Dialer, inventory roles.InventoryProvider, credentials roles.CredentialProvider, bus plugin.EventBus, logger *zap.Logger) *Pool {
	return &Pool{
		cfg:         cfg,
		logger:      logger,
		bus:         bus,
		dialer:      dialer,
		inventory:   inventory,
		credentials: credentials,
		conns:       make(map[string]*conn),
	}
}

// Acquire returns a lease on the device's shared connection, dialing if
// needed. Concurrent acquires during a dial share the one attempt. During
// backoff it fails fast with a ConnectError carrying RetryAfter.
func (p *Pool) Acquire(ctx context.Context, deviceID string) (Lease, error) {
	// Unknown devices are rejected before any dial is attempted.
	if p.inventory != nil {
		if _, err := p.inventory.DeviceByID(ctx, deviceID); err != nil {
			return nil, err
		}
	}

	// A conn can tear down between lookup and request delivery; retry
	// against a fresh one.
	for attempt := 0; attempt < 3; attempt++ {
		c, err := p.getOrCreate(deviceID)
		if err != nil {
			return nil, err
		}

		req := acquireReq{reply: make(chan acquireResult, 1)}
		select {
		case c.reqs <- req:
		case <-c.done:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		select {
		case res := <-req.reply:
			if res.err != nil {
				return nil, res.err
			}
			return res.lease, nil
		case <-ctx.Done():
			// The owner will still answer; hand the abandoned lease back.
			go func() {
				if res := <-req.reply; res.lease != nil {
					res.lease.Release()
				}
			}()
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("acquire %s: %w", deviceID, ErrDeviceDisconnected)
}

func (p *Pool) getOrCreate(deviceID string) (*conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if c, ok := p.conns[deviceID]; ok {
		return c, nil
	}
	c := newConn(deviceID, p)
	p.conns[deviceID] = c
	go c.run()
	return c, nil
}

func (p *Pool) remove(deviceID string, c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[deviceID] == c {
		delete(p.conns, deviceID)
	}
}

// Close tears down the device's connection if one exists. Idempotent.
func (p *Pool) Close(deviceID string) {
	p.mu.Lock()
	c, ok := p.conns[deviceID]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.closeConn(c, "closed by request")
}

// CloseAll shuts the pool down. Further acquires fail with ErrPoolClosed.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	p.closed = true
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		p.closeConn(c, "pool shutdown")
	}
}

func (p *Pool) closeConn(c *conn, reason string) {
	req := closeReq{reason: reason, reply: make(chan struct{}, 1)}
	select {
	case c.reqs <- req:
		<-req.reply
	case <-c.done:
	}
}

// States reports every live connection, sorted by device id.
func (p *Pool) States() []ConnInfo {
	p.mu.Lock()
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	infos := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		if info, ok := p.stateOf(c); ok {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	return infos
}

// Info reports the connection state for one device, if a conn exists.
func (p *Pool) Info(deviceID string) (ConnInfo, bool) {
	p.mu.Lock()
	c, ok := p.conns[deviceID]
	p.mu.Unlock()
	if !ok {
		return ConnInfo{}, false
	}
	return p.stateOf(c)
}

func (p *Pool) stateOf(c *conn) (ConnInfo, bool) {
	req := stateReq{reply: make(chan ConnInfo, 1)}
	select {
	case c.reqs <- req:
		return <-req.reply, true
	case <-c.done:
		return ConnInfo{}, false
	}
}

// resolveAndDial builds the dial target from the inventory, with the
// credential store consulted fresh on every attempt so rotated secrets take
// effect on reconnect. Runs on a dial goroutine, never the owner.
func (p *Pool) resolveAndDial(ctx context.Context, deviceID string) (Transport, string, error) {
	device, err := p.inventory.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, "", err
	}

	var cred *models.Credential
	if p.credentials != nil {
		cr, crErr := p.credentials.CredentialForDevice(ctx, deviceID)
		switch {
		case crErr == nil:
			cred = cr
		case errors.Is(crErr, roles.ErrDeviceNotFound):
			// No stored credential; the dialer falls back to ssh_config.
		default:
			return nil, device.Host, fmt.Errorf("credential for %s: %w", deviceID, crErr)
		}
	}

	target := Target{
		DeviceID:   deviceID,
		Host:       device.Host,
		Port:       device.Port,
		User:       device.User,
		Credential: cred,
	}
	transport, err := p.dialer.Dial(ctx, target)
	return transport, device.Host, err
}

func (p *Pool) publish(topic string, payload ConnEvent) {
	if p.bus == nil {
		return
	}
	p.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "uplink",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

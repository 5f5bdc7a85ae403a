// Package broker implements the embedded MQTT 3.1.1 broker: the TCP
// accept loop, per-session read/dispatch, PUBLISH fan-out, the keep-alive
// reaper, and a small hook system. It is grounded on the teacher's
// network.Listener/network.Connection/hook.Manager, adapted to MQTT
// 3.1.1-only semantics (no MQTT5, no QoS2 session store, no shared
// subscriptions) per spec.md's Non-goals.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nas-panel/panel-server/internal/applog"
	"github.com/nas-panel/panel-server/internal/mqttcodec"
	"github.com/nas-panel/panel-server/internal/mqttsession"
	"github.com/nas-panel/panel-server/internal/topic"
)

// ErrPublishFailure wraps any failure to hand a PUBLISH to the broker
// core, distinct from a wire-level codec error.
var ErrPublishFailure = errors.New("broker: publish failed")

// Publisher is the interface the scheduler (internal/schedule) publishes
// telemetry documents through. Both the embedded Broker and the
// external-broker adapter (internal/externalbroker) implement it, so the
// scheduler is agnostic to mqtt.type.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
}

// Config configures a Broker. Zero values are replaced with the defaults
// spec.md §4.4/§4.6 names.
type Config struct {
	Address        string
	AcceptTimeout  time.Duration
	MaxConnections int
	WriteQueueSize int
	ReaperInterval time.Duration
	ReaperCeiling  time.Duration
}

func (c *Config) setDefaults() {
	if c.Address == "" {
		c.Address = "0.0.0.0:1883"
	}
	if c.AcceptTimeout == 0 {
		c.AcceptTimeout = 5 * time.Second
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 10000
	}
	if c.WriteQueueSize == 0 {
		c.WriteQueueSize = defaultWriteQueueSize
	}
	if c.ReaperInterval == 0 {
		c.ReaperInterval = 60 * time.Second
	}
	if c.ReaperCeiling == 0 || c.ReaperCeiling > 300*time.Second {
		c.ReaperCeiling = 300 * time.Second
	}
	if c.ReaperInterval > c.ReaperCeiling {
		c.ReaperInterval = c.ReaperCeiling
	}
}

// Broker is the embedded MQTT server core. It owns two separate locks per
// spec.md §5: mu guards the client-id -> session/connection tables, while
// table (internal/topic.Table) guards the subscription index and
// retained store as its own unit.
type Broker struct {
	cfg   Config
	log   *applog.Logger
	hooks *HookManager
	table *topic.Table

	mu       sync.Mutex
	sessions *mqttsession.Manager
	conns    map[string]*conn // clientID -> live connection

	listener net.Listener
	connSeq  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed atomic.Bool
}

func New(cfg Config, log *applog.Logger) *Broker {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		cfg:      cfg,
		log:      log,
		hooks:    NewHookManager(),
		table:    topic.NewTable(),
		sessions: mqttsession.NewManager(),
		conns:    make(map[string]*conn),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnEvent registers a hook callback.
func (b *Broker) OnEvent(fn HookFunc) { b.hooks.Add(fn) }

// Start opens the listener and begins accepting connections and running
// the keep-alive reaper. It returns once the listener is bound.
func (b *Broker) Start() error {
	ln, err := net.Listen("tcp", b.cfg.Address)
	if err != nil {
		return fmt.Errorf("broker: listen %s: %w", b.cfg.Address, err)
	}
	b.listener = ln
	b.log.Info("broker listening", "address", ln.Addr().String())

	b.wg.Add(2)
	go b.acceptLoop()
	go b.reapLoop()
	return nil
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		if tl, ok := b.listener.(*net.TCPListener); ok && b.cfg.AcceptTimeout > 0 {
			_ = tl.SetDeadline(time.Now().Add(b.cfg.AcceptTimeout))
		}

		nc, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if b.closed.Load() {
				return
			}
			continue
		}

		if b.activeConnCount() >= b.cfg.MaxConnections {
			_ = nc.Close()
			continue
		}

		b.wg.Add(1)
		go b.handleConn(nc)
	}
}

func (b *Broker) activeConnCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *Broker) nextConnID() string {
	return fmt.Sprintf("conn-%d", b.connSeq.Add(1))
}

// Stop closes the listener and the socket of every connection that has
// completed CONNECT, then waits up to 5s for the broker's goroutines to
// exit. If they have not exited by then it logs a warning and returns
// without waiting further.
func (b *Broker) Stop() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	if b.listener != nil {
		_ = b.listener.Close()
	}

	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		b.log.Warn("broker shutdown exceeded grace period, returning without waiting")
	}
	return nil
}

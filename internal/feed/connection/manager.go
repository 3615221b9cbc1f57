package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pricefeed/internal/feed/memorystore"
	"pricefeed/internal/feed/stream"
	"pricefeed/internal/feed/subscription"
	"pricefeed/pkg/cryptocompare"
	"pricefeed/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrHeartbeatTimeout is the close reason when no keepalive arrived in time.
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")

// TransportError wraps dial, read and write failures. It always leads to a
// reconnect.
type TransportError struct {
	Op  string // "dial", "read", "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PairSource supplies the current active pair snapshot.
type PairSource interface {
	Snapshot() []memorystore.TradingPair
}

// MessageHandler consumes inbound frames.
type MessageHandler interface {
	Handle(msg []byte) (stream.Result, error)
}

type Options struct {
	Backoff          Backoff
	HeartbeatTimeout time.Duration // heartbeat interval + grace
	Format           cryptocompare.SubscriptionFormat
	MaxSubsPerFrame  int
	FramesPerSecond  float64 // <= 0 disables pacing
	FrameBurst       int
}

// inbound is a frame or read error forwarded by a connection's reader.
type inbound struct {
	gen uint64
	msg []byte
	err error
}

// Manager owns the streaming connection. All connection state is touched only
// by the goroutine running Run; other goroutines talk to it through Resync.
type Manager struct {
	dialer  cryptocompare.Dialer
	pairs   PairSource
	handler MessageHandler
	opts    Options
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger

	state atomic.Int32

	resyncCh   chan struct{}
	pendingMu  sync.Mutex
	pending    []memorystore.TradingPair
	pendingSet bool // distinguishes Resync(nil) from no request

	events  chan inbound
	readers sync.WaitGroup

	// loop-owned
	conn      cryptocompare.Conn
	connDone  chan struct{}
	gen       uint64
	session   string
	subs      subscription.Set
	attempt   int
	reconnect *time.Timer
	heartbeat *time.Timer

	// scheduled observes every reconnect delay; used by tests.
	scheduled func(attempt int, delay time.Duration)
}

// NewManager creates a manager. A nil m records into a private registry.
func NewManager(dialer cryptocompare.Dialer, pairs PairSource, handler MessageHandler,
	opts Options, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if m == nil {
		m = metrics.NewNop()
	}
	limit := rate.Inf
	if opts.FramesPerSecond > 0 {
		limit = rate.Limit(opts.FramesPerSecond)
	}
	burst := opts.FrameBurst
	if burst <= 0 {
		burst = 1
	}

	mgr := &Manager{
		dialer:   dialer,
		pairs:    pairs,
		handler:  handler,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, burst),
		metrics:  m,
		logger:   logger,
		resyncCh: make(chan struct{}, 1),
		events:   make(chan inbound, 256),
		subs:     subscription.NewSet(),
	}
	mgr.setState(Disconnected)
	return mgr
}

// State returns the current connection state. Safe for concurrent use.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Resync asks the loop to reconcile subscriptions against pairs. It never
// blocks; if several requests arrive before the loop runs, the last wins.
// While the connection is not open the request is dropped, since the next
// open subscribes from the pair cache anyway.
func (m *Manager) Resync(pairs []memorystore.TradingPair) {
	cp := make([]memorystore.TradingPair, len(pairs))
	copy(cp, pairs)

	m.pendingMu.Lock()
	m.pending = cp
	m.pendingSet = true
	m.pendingMu.Unlock()

	select {
	case m.resyncCh <- struct{}{}:
	default:
	}
}

// Run connects immediately and keeps the connection alive until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.reconnect = time.NewTimer(0)
	m.heartbeat = time.NewTimer(time.Hour)
	m.heartbeat.Stop()
	defer m.reconnect.Stop()
	defer m.heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil

		case <-m.reconnect.C:
			m.connect(ctx)

		case ev := <-m.events:
			if ev.gen != m.gen {
				continue // from a connection that is already gone
			}
			if ev.err != nil {
				m.onError(ctx, &TransportError{Op: "read", Err: ev.err})
				continue
			}
			m.onMessage(ev.msg)

		case <-m.heartbeat.C:
			if m.State() != Open {
				continue
			}
			m.logger.Warn("no heartbeat received, forcing reconnect",
				zap.String("session", m.session),
				zap.Duration("timeout", m.opts.HeartbeatTimeout))
			m.onClose(ErrHeartbeatTimeout)

		case <-m.resyncCh:
			pairs, ok := m.takePending()
			if !ok {
				continue // already applied by an earlier signal
			}
			if m.State() != Open {
				m.logger.Debug("connection not open, deferring resync to next open",
					zap.Stringer("state", m.State()))
				continue
			}
			if err := m.reconcile(ctx, pairs); err != nil {
				m.onError(ctx, err)
			}
		}
	}
}

func (m *Manager) connect(ctx context.Context) {
	m.setState(Connecting)

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			m.setState(Disconnected)
			return
		}
		m.onError(ctx, &TransportError{Op: "dial", Err: err})
		return
	}

	m.gen++
	m.conn = conn
	m.connDone = make(chan struct{})
	m.session = uuid.NewString()

	m.readers.Add(1)
	go m.read(conn, m.gen, m.connDone)

	m.onOpen(ctx)
}

// onOpen resets backoff, forgets old subscriptions and subscribes to the
// whole pair cache before arming the watchdog.
func (m *Manager) onOpen(ctx context.Context) {
	m.attempt = 0
	m.subs = subscription.NewSet()
	m.setState(Open)
	m.logger.Info("websocket connection opened", zap.String("session", m.session))

	if err := m.reconcile(ctx, m.pairs.Snapshot()); err != nil {
		m.onError(ctx, err)
		return
	}
	m.logger.Info("initial subscriptions set",
		zap.String("session", m.session),
		zap.Int("subscriptions", len(m.subs)))

	m.heartbeat.Reset(m.opts.HeartbeatTimeout)
}

func (m *Manager) onMessage(msg []byte) {
	res, _ := m.handler.Handle(msg) // the handler reports its own failures
	if res == stream.ResultHeartbeat {
		m.heartbeat.Reset(m.opts.HeartbeatTimeout)
	}
}

func (m *Manager) onError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return // shutting down; Run will clean up
	}
	m.logger.Error("websocket error",
		zap.String("phase", phaseOf(err)),
		zap.String("session", m.session),
		zap.Error(err))
	m.onClose(err)
}

// onClose tears the connection down and schedules the next connect.
func (m *Manager) onClose(reason error) {
	m.setState(Closing)
	m.heartbeat.Stop()
	m.closeConn()
	m.setState(Disconnected)

	delay := m.opts.Backoff.Delay(m.attempt)
	m.attempt++
	m.reconnect.Reset(delay)
	m.metrics.Reconnects.Inc()
	if m.scheduled != nil {
		m.scheduled(m.attempt-1, delay)
	}

	m.logger.Info("websocket connection closed, reconnecting",
		zap.String("session", m.session),
		zap.NamedError("reason", reason),
		zap.Int("attempt", m.attempt),
		zap.Duration("delay", delay))
}

func (m *Manager) shutdown() {
	m.setState(Closing)
	m.heartbeat.Stop()
	m.reconnect.Stop()
	m.closeConn()
	m.readers.Wait()
	m.setState(Disconnected)
	m.logger.Info("websocket manager stopped")
}

func (m *Manager) closeConn() {
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.logger.Debug("websocket close", zap.String("session", m.session), zap.Error(err))
	}
	close(m.connDone)
	m.conn = nil
	m.gen++ // anything still queued from this connection is stale
	m.subs = subscription.NewSet()
	m.metrics.Subscriptions.Set(0)
}

// reconcile sends removals then additions and records each frame that made it
// onto the wire, so subs always matches what the provider was told.
func (m *Manager) reconcile(ctx context.Context, desired []memorystore.TradingPair) error {
	diff := subscription.Reconcile(m.subs, desired)
	if diff.Empty() {
		return nil
	}

	// chunk the keys themselves so the set is updated from keys, not from
	// re-parsed wire strings
	remove := cryptocompare.Frames(cryptocompare.ActionSubRemove, diff.ToRemove, m.opts.MaxSubsPerFrame)
	add := cryptocompare.Frames(cryptocompare.ActionSubAdd, diff.ToAdd, m.opts.MaxSubsPerFrame)

	for _, chunk := range append(remove, add...) {
		frame := cryptocompare.SubscriptionFrame{
			Action: chunk.Action,
			Subs:   m.opts.Format.FormatAll(chunk.Subs),
		}
		if err := m.send(ctx, frame); err != nil {
			return err
		}
		for _, key := range chunk.Subs {
			if chunk.Action == cryptocompare.ActionSubRemove {
				delete(m.subs, key)
			} else {
				m.subs[key] = struct{}{}
			}
		}
	}

	m.metrics.Subscriptions.Set(float64(len(m.subs)))
	m.logger.Info("websocket subscriptions updated",
		zap.String("session", m.session),
		zap.Int("added", len(diff.ToAdd)),
		zap.Int("removed", len(diff.ToRemove)),
		zap.Int("subscriptions", len(m.subs)))
	return nil
}

func (m *Manager) send(ctx context.Context, frame cryptocompare.SubscriptionFrame) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if err := m.conn.WriteJSON(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	m.metrics.FramesSent.WithLabelValues(frame.Action).Inc()
	return nil
}

// read forwards frames until the connection fails or is closed.
func (m *Manager) read(conn cryptocompare.Conn, gen uint64, done <-chan struct{}) {
	defer m.readers.Done()
	for {
		msg, err := conn.ReadMessage()
		select {
		case m.events <- inbound{gen: gen, msg: msg, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// takePending returns the latest requested pair set. ok is false when the
// request was already consumed.
func (m *Manager) takePending() ([]memorystore.TradingPair, bool) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if !m.pendingSet {
		return nil, false
	}
	pairs := m.pending
	m.pending = nil
	m.pendingSet = false
	return pairs, true
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.ConnectionState.Set(float64(s))
}

func phaseOf(err error) string {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Op
	}
	return "unknown"
}

package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/logging"
	"github.com/sound-priority/daemon/internal/metrics"
	"github.com/sound-priority/daemon/internal/session"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// has been reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	id   string
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans daemon events out to websocket clients. Tick snapshots
// are coalesced and sent at most once per throttle interval; status flips
// and run state changes go out immediately.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	store    *session.Store
	privacy  *session.PrivacyFilter
	maxConns int
	log      *slog.Logger

	clock          clockwork.Clock
	throttle       time.Duration
	snapshotTicker clockwork.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	flushMu    sync.Mutex
	flushTimer clockwork.Timer
}

// NewBroadcaster starts the periodic snapshot loop. maxConns <= 0 means no
// connection limit.
func NewBroadcaster(store *session.Store, clock clockwork.Clock, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		privacy:  &session.PrivacyFilter{},
		maxConns: maxConns,
		log:      logging.Discard(),
		clock:    clock,
		throttle: throttle,
		stop:     make(chan struct{}),
	}

	b.snapshotTicker = clock.NewTicker(snapshotInterval)
	go b.snapshotLoop()

	return b
}

// SetPrivacy replaces the filter applied to every outgoing snapshot.
func (b *Broadcaster) SetPrivacy(f *session.PrivacyFilter) {
	if f == nil {
		f = &session.PrivacyFilter{}
	}
	b.mu.Lock()
	b.privacy = f
	b.mu.Unlock()
}

func (b *Broadcaster) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log = l.With("component", "ws")
	}
}

// Stop ends the snapshot loop and any pending flush. Connected clients are
// left alone.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.snapshotTicker.Stop()
		close(b.stop)
		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()
	})
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		b:    b,
		send: make(chan []byte, 64),
	}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	metrics.WebSocketConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.WebSocketConnectionsCurrent.Inc()
	go c.writePump()

	for _, msg := range []WSMessage{
		{Type: MsgHello, Payload: HelloPayload{ClientID: c.id}},
		{Type: MsgSnapshot, Payload: SnapshotPayload{Snapshot: b.FilterSnapshot(b.store.Latest())}},
	} {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		b.trySend(c, data)
	}

	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
		metrics.WebSocketConnectionsCurrent.Dec()
	}
	b.mu.Unlock()
}

// Publish forwards a daemon event. The store must already hold the event's
// snapshot.
func (b *Broadcaster) Publish(ev session.Event) {
	switch ev.Type {
	case session.EventFlip:
		b.broadcast(WSMessage{
			Type: MsgStatus,
			Payload: StatusPayload{
				Status:  ev.Snapshot.Status,
				Peak:    ev.Snapshot.Peak,
				Desired: ev.Snapshot.Desired,
				Tick:    ev.Snapshot.Tick,
			},
		})
		b.queueSnapshot()
	case session.EventSuspended, session.EventResumed:
		b.broadcast(WSMessage{
			Type:    MsgDaemon,
			Payload: DaemonPayload{Suspended: ev.Type == session.EventSuspended},
		})
	default:
		b.queueSnapshot()
	}
}

// QueueConfig tells clients the ducking configuration changed.
func (b *Broadcaster) QueueConfig(d config.Ducking) {
	b.broadcast(WSMessage{Type: MsgConfig, Payload: ConfigPayload{Ducking: d}})
}

func (b *Broadcaster) queueSnapshot() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	select {
	case <-b.stop:
		return
	default:
	}
	if b.flushTimer == nil {
		b.flushTimer = b.clock.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	b.flushTimer = nil
	b.flushMu.Unlock()

	b.broadcastSnapshot()
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.Chan():
			b.broadcastSnapshot()
		}
	}
}

func (b *Broadcaster) broadcastSnapshot() {
	b.broadcast(WSMessage{
		Type:    MsgSnapshot,
		Payload: SnapshotPayload{Snapshot: b.FilterSnapshot(b.store.Latest())},
	})
}

// FilterSnapshot applies the privacy filter.
func (b *Broadcaster) FilterSnapshot(snap session.Snapshot) session.Snapshot {
	b.mu.RLock()
	f := b.privacy
	b.mu.RUnlock()
	return f.FilterSnapshot(snap)
}

// FilterSessions applies the privacy filter to a list of views.
func (b *Broadcaster) FilterSessions(views []session.View) []session.View {
	return b.FilterSnapshot(session.Snapshot{Sessions: views}).Sessions
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("ws.marshal_failed", "type", msg.Type, "err", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			metrics.WebSocketSlowClientsEvicted.Inc()
			b.log.Warn("ws.client_too_slow", "client", c.id)
			b.RemoveClient(c)
		}
	}
}

// trySend reports false when the client's buffer is full. A client removed
// concurrently counts as delivered.
func (b *Broadcaster) trySend(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

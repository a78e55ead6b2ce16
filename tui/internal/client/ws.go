package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

// WSClient manages the WebSocket connection to the daemon's status server.
type WSClient struct {
	url   string
	token string

	mu   sync.Mutex
	live *liveConn
}

// liveConn is one established connection and the keepalive bound to it.
type liveConn struct {
	conn *websocket.Conn
	stop context.CancelFunc
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{url: url, token: token}
}

// --- Bubble Tea messages ---

// WSConnectedMsg is sent when the WebSocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

type WSHelloMsg struct{ Payload HelloPayload }

// WSSnapshotMsg delivers the full daemon state.
type WSSnapshotMsg struct{ Payload SnapshotPayload }

// WSStatusMsg is sent as soon as the ducking status flips.
type WSStatusMsg struct{ Payload StatusPayload }

// WSDaemonMsg reports a suspend or resume.
type WSDaemonMsg struct{ Payload DaemonPayload }

// WSConfigMsg carries a configuration change made by any client.
type WSConfigMsg struct{ Payload ConfigPayload }

// WSErrorMsg wraps a server-side error.
type WSErrorMsg struct{ Payload ErrorPayload }

// Listen returns a Bubble Tea command that dials until it succeeds or ctx
// ends, doubling the wait after each failure.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		header := http.Header{}
		if c.token != "" {
			header.Set("X-Sound-Priority-Token", c.token)
		}

		for delay := reconnectBaseDelay; ; delay = min(delay*2, reconnectMaxDelay) {
			if ctx.Err() != nil {
				return nil
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
			if err == nil {
				c.attach(ctx, conn)
				return WSConnectedMsg{}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
	}
}

func (c *WSClient) attach(ctx context.Context, conn *websocket.Conn) {
	kaCtx, stop := context.WithCancel(ctx)
	c.mu.Lock()
	prev := c.live
	c.live = &liveConn{conn: conn, stop: stop}
	c.mu.Unlock()
	if prev != nil {
		prev.stop()
		_ = prev.conn.Close()
	}
	go keepalive(kaCtx, conn)
}

// detach forgets conn if it is still current.
func (c *WSClient) detach(conn *websocket.Conn) {
	c.mu.Lock()
	var lc *liveConn
	if c.live != nil && (conn == nil || c.live.conn == conn) {
		lc, c.live = c.live, nil
	}
	c.mu.Unlock()
	if lc != nil {
		lc.stop()
		_ = lc.conn.Close()
	}
}

func (c *WSClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil {
		return nil
	}
	return c.live.conn
}

// ReadLoop returns a Bubble Tea command that blocks until the next message
// the model cares about. The model re-issues it after handling each one.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		conn := c.current()
		if conn == nil {
			return WSDisconnectedMsg{Err: errNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})

		for {
			_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				var syntaxErr *json.SyntaxError
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
					continue
				}
				c.detach(conn)
				return WSDisconnectedMsg{Err: err}
			}
			if teaMsg := Dispatch(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// keepalive pings until ctx ends or a ping fails. WriteControl may run
// concurrently with other writers.
func keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close drops the current connection, if any.
func (c *WSClient) Close() {
	c.detach(nil)
}

func decode[T any](raw json.RawMessage, wrap func(T) tea.Msg) tea.Msg {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return wrap(p)
}

// Dispatch converts a wire message into its Bubble Tea message. Unknown or
// malformed messages yield nil.
func Dispatch(msg WSMessage) tea.Msg {
	switch msg.Type {
	case MsgHello:
		return decode(msg.Payload, func(p HelloPayload) tea.Msg { return WSHelloMsg{Payload: p} })
	case MsgSnapshot:
		return decode(msg.Payload, func(p SnapshotPayload) tea.Msg { return WSSnapshotMsg{Payload: p} })
	case MsgStatus:
		return decode(msg.Payload, func(p StatusPayload) tea.Msg { return WSStatusMsg{Payload: p} })
	case MsgDaemon:
		return decode(msg.Payload, func(p DaemonPayload) tea.Msg { return WSDaemonMsg{Payload: p} })
	case MsgConfig:
		return decode(msg.Payload, func(p ConfigPayload) tea.Msg { return WSConfigMsg{Payload: p} })
	case MsgError:
		return decode(msg.Payload, func(p ErrorPayload) tea.Msg { return WSErrorMsg{Payload: p} })
	}
	return nil
}

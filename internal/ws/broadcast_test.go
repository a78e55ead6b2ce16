package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/session"
)

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

type rawMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// attachClient registers a client with no connection so tests can read what
// the broadcaster queues for it.
func attachClient(b *Broadcaster, buffer int) *client {
	c := &client{id: "test", b: b, send: make(chan []byte, buffer)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

func recvMessage(t *testing.T, c *client) rawMessage {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		var msg rawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return rawMessage{}
	}
}

func assertNoMessage(t *testing.T, c *client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		Tick:    7,
		Status:  session.Reduce,
		Peak:    0.4,
		Desired: 0.3,
		Health:  session.Healthy,
		Sessions: []session.View{
			{PID: 100, Name: "game", Path: `C:\Games\game.exe`, Volume: 0.5, Role: session.Target},
			{PID: 200, Name: "Discord", Path: "/opt/discord/Discord", Volume: 1, Peak: 0.4, Role: session.Measured},
			{PID: 300, Name: "secret-chat", Path: "/opt/secret/secret-chat", Volume: 1, Role: session.Measured},
		},
	}
}

func newFakeBroadcaster(t *testing.T, throttle time.Duration) (*Broadcaster, *session.Store, fakeClock) {
	t.Helper()
	store := session.NewStore()
	fc := clockwork.NewFakeClock()
	b := NewBroadcaster(store, fc, throttle, time.Hour, 0)
	t.Cleanup(b.Stop)
	return b, store, fc
}

func TestPublishTickIsThrottled(t *testing.T) {
	b, store, fc := newFakeBroadcaster(t, 250*time.Millisecond)
	c := attachClient(b, 8)

	for i := 0; i < 3; i++ {
		ev := session.Event{Type: session.EventTick, Snapshot: sampleSnapshot()}
		store.Apply(ev)
		b.Publish(ev)
	}
	assertNoMessage(t, c)

	fc.Advance(250 * time.Millisecond)

	msg := recvMessage(t, c)
	if msg.Type != MsgSnapshot {
		t.Fatalf("type = %q, want %q", msg.Type, MsgSnapshot)
	}
	var payload SnapshotPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Snapshot.Tick != 7 {
		t.Errorf("tick = %d, want 7", payload.Snapshot.Tick)
	}
	if len(payload.Snapshot.Sessions) != 3 {
		t.Errorf("sessions = %d, want 3", len(payload.Snapshot.Sessions))
	}

	// Three ticks coalesce into one snapshot.
	assertNoMessage(t, c)
}

func TestPublishFlipSendsStatusImmediately(t *testing.T) {
	b, store, _ := newFakeBroadcaster(t, time.Hour)
	c := attachClient(b, 8)

	ev := session.Event{Type: session.EventFlip, Snapshot: sampleSnapshot()}
	store.Apply(ev)
	b.Publish(ev)

	msg := recvMessage(t, c)
	if msg.Type != MsgStatus {
		t.Fatalf("type = %q, want %q", msg.Type, MsgStatus)
	}
	var payload StatusPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != session.Reduce {
		t.Errorf("status = %v, want reduce", payload.Status)
	}
	if payload.Desired != 0.3 || payload.Tick != 7 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestPublishSuspendAndResume(t *testing.T) {
	b, _, _ := newFakeBroadcaster(t, time.Hour)
	c := attachClient(b, 8)

	b.Publish(session.Event{Type: session.EventSuspended})
	b.Publish(session.Event{Type: session.EventResumed})

	for _, want := range []bool{true, false} {
		msg := recvMessage(t, c)
		if msg.Type != MsgDaemon {
			t.Fatalf("type = %q, want %q", msg.Type, MsgDaemon)
		}
		var payload DaemonPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload.Suspended != want {
			t.Errorf("suspended = %v, want %v", payload.Suspended, want)
		}
	}
}

func TestQueueConfig(t *testing.T) {
	b, _, _ := newFakeBroadcaster(t, time.Hour)
	c := attachClient(b, 8)

	d := config.DefaultDucking()
	d.Targets = []string{"game.exe"}
	b.QueueConfig(d)

	msg := recvMessage(t, c)
	if msg.Type != MsgConfig {
		t.Fatalf("type = %q, want %q", msg.Type, MsgConfig)
	}
	var payload ConfigPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Ducking.Targets) != 1 || payload.Ducking.Targets[0] != "game.exe" {
		t.Errorf("targets = %v", payload.Ducking.Targets)
	}
}

func TestSnapshotLoopSendsPeriodically(t *testing.T) {
	store := session.NewStore()
	fc := clockwork.NewFakeClock()
	b := NewBroadcaster(store, fc, time.Hour, 5*time.Second, 0)
	defer b.Stop()
	c := attachClient(b, 8)

	store.Apply(session.Event{Type: session.EventTick, Snapshot: sampleSnapshot()})
	fc.Advance(5 * time.Second)

	if msg := recvMessage(t, c); msg.Type != MsgSnapshot {
		t.Fatalf("type = %q, want %q", msg.Type, MsgSnapshot)
	}
}

func TestPublishAfterStopSchedulesNothing(t *testing.T) {
	b, _, fc := newFakeBroadcaster(t, 100*time.Millisecond)
	c := attachClient(b, 8)

	b.Stop()
	b.Stop()
	b.Publish(session.Event{Type: session.EventTick})
	fc.Advance(time.Second)

	assertNoMessage(t, c)
}

func TestBroadcastEvictsSlowClient(t *testing.T) {
	b, _, _ := newFakeBroadcaster(t, time.Hour)
	slow := attachClient(b, 1)
	slow.send <- []byte("backlog")
	fast := attachClient(b, 8)

	b.Publish(session.Event{Type: session.EventSuspended})

	if got := b.ClientCount(); got != 1 {
		t.Fatalf("expected slow client evicted, ClientCount = %d", got)
	}
	if msg := recvMessage(t, fast); msg.Type != MsgDaemon {
		t.Errorf("fast client got %q", msg.Type)
	}
}

func TestFilterSnapshot_NoFilter(t *testing.T) {
	b, _, _ := newFakeBroadcaster(t, time.Hour)

	got := b.FilterSnapshot(sampleSnapshot())
	if len(got.Sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(got.Sessions))
	}
	if got.Sessions[0].Path == "" || got.Sessions[0].PID == 0 {
		t.Errorf("no-op filter masked fields: %+v", got.Sessions[0])
	}
}

func TestFilterSnapshot_HiddenApps(t *testing.T) {
	tests := []struct {
		name   string
		hidden []string
		want   []string
	}{
		{"exact", []string{"secret-chat"}, []string{"game", "Discord"}},
		{"glob", []string{"secret-*"}, []string{"game", "Discord"}},
		{"several", []string{"secret-*", "game"}, []string{"Discord"}},
		{"no match", []string{"zoom"}, []string{"game", "Discord", "secret-chat"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _ := newFakeBroadcaster(t, time.Hour)
			b.SetPrivacy(&session.PrivacyFilter{HiddenApps: tt.hidden})

			got := b.FilterSnapshot(sampleSnapshot())
			if len(got.Sessions) != len(tt.want) {
				t.Fatalf("expected %d sessions, got %d", len(tt.want), len(got.Sessions))
			}
			for i, name := range tt.want {
				if got.Sessions[i].Name != name {
					t.Errorf("sessions[%d] = %q, want %q", i, got.Sessions[i].Name, name)
				}
			}
		})
	}
}

func TestFilterSessions_Masking(t *testing.T) {
	b, _, _ := newFakeBroadcaster(t, time.Hour)
	b.SetPrivacy(&session.PrivacyFilter{MaskPaths: true, MaskPIDs: true})

	snap := sampleSnapshot()
	result := b.FilterSessions(snap.Sessions)
	if len(result) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(result))
	}
	for _, v := range result {
		if v.Path != "" {
			t.Errorf("%s: path not masked: %q", v.Name, v.Path)
		}
		if v.PID != 0 {
			t.Errorf("%s: pid not masked: %d", v.Name, v.PID)
		}
	}

	if snap.Sessions[0].Path == "" {
		t.Error("filter modified the input")
	}
}

func TestSetPrivacyNilResets(t *testing.T) {
	b, _, _ := newFakeBroadcaster(t, time.Hour)
	b.SetPrivacy(&session.PrivacyFilter{HiddenApps: []string{"*"}})
	b.SetPrivacy(nil)

	if got := b.FilterSnapshot(sampleSnapshot()); len(got.Sessions) != 3 {
		t.Fatalf("expected 3 sessions after reset, got %d", len(got.Sessions))
	}
}

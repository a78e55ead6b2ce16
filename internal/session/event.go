package session

// EventType classifies daemon events.
type EventType int

const (
	EventTick      EventType = iota // a tick completed
	EventFlip                       // status changed on this tick
	EventSuspended                  // the loop stopped ticking
	EventResumed                    // the loop started ticking again
)

var eventNames = map[EventType]string{
	EventTick:      "tick",
	EventFlip:      "flip",
	EventSuspended: "suspended",
	EventResumed:   "resumed",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// Event carries a snapshot to observers. The snapshot is a private copy
// and safe to retain.
type Event struct {
	Type     EventType
	Snapshot Snapshot
}

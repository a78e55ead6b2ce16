package ducker

import (
	"sync"

	"github.com/sound-priority/daemon/internal/config"
)

type CommandKind int

const (
	CmdResume CommandKind = iota
	CmdSuspend
	CmdUpdate
)

func (k CommandKind) String() string {
	switch k {
	case CmdResume:
		return "resume"
	case CmdSuspend:
		return "suspend"
	case CmdUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Command is one message to the control loop. Config is only set for
// CmdUpdate.
type Command struct {
	Kind   CommandKind
	Config config.Ducking
}

// mailbox is an unbounded multi-producer, single-consumer FIFO. Senders
// never block. After close, queued commands are still delivered in order
// and then the receiver sees the mailbox as closed.
type mailbox struct {
	mu     sync.Mutex
	queue  []Command
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// send enqueues cmd. It reports false if the mailbox is already closed.
func (m *mailbox) send(cmd Command) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, cmd)
	m.mu.Unlock()
	m.wake()
	return true
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

type recvState int

const (
	recvEmpty recvState = iota
	recvOK
	recvClosed
)

// tryRecv pops the oldest command without blocking.
func (m *mailbox) tryRecv() (Command, recvState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		cmd := m.queue[0]
		m.queue[0] = Command{}
		m.queue = m.queue[1:]
		return cmd, recvOK
	}
	if m.closed {
		return Command{}, recvClosed
	}
	return Command{}, recvEmpty
}

// recv blocks until a command is available. It returns false once the
// mailbox is closed and drained.
func (m *mailbox) recv() (Command, bool) {
	for {
		cmd, st := m.tryRecv()
		switch st {
		case recvOK:
			return cmd, true
		case recvClosed:
			return Command{}, false
		}
		<-m.signal
	}
}

// pending returns the number of queued commands.
func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

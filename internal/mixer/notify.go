package mixer

import "sync"

type flag struct {
	mu  sync.Mutex
	set bool
}

func (f *flag) mark() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// take reports whether the flag was set and clears it in the same critical
// section, so a mark that races with the consumer is seen on the next take.
func (f *flag) take() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.set
	f.set = false
	return was
}

func (f *flag) peek() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// ChangeFlags carries change notifications from the audio subsystem's
// callback threads to the snapshot owner. Multiple notifications coalesce
// into one pending flag.
type ChangeFlags struct {
	device   flag
	sessions flag
}

func NewChangeFlags() *ChangeFlags {
	return &ChangeFlags{}
}

// MarkDeviceChanged is safe to call from any goroutine.
func (c *ChangeFlags) MarkDeviceChanged() { c.device.mark() }

// MarkSessionsChanged is safe to call from any goroutine.
func (c *ChangeFlags) MarkSessionsChanged() { c.sessions.mark() }

func (c *ChangeFlags) DeviceChanged() bool   { return c.device.peek() }
func (c *ChangeFlags) SessionsChanged() bool { return c.sessions.peek() }

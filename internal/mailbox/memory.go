package mailbox

import (
	"context"
	"fmt"
	"sync"
)

const memoryMailboxBuffer = 16

// MemoryDirectory is an in-process Directory used by tests and by
// single-process deployments where both contexts run in one binary.
type MemoryDirectory struct {
	mu    sync.Mutex
	boxes map[string]*memoryBox
}

type memoryBox struct {
	ch     chan []byte
	closed bool
}

// NewMemoryDirectory creates an empty in-memory mailbox directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{boxes: make(map[string]*memoryBox)}
}

// Register creates a mailbox under name.
func (d *MemoryDirectory) Register(ctx context.Context, name string) (Receiver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.boxes[name]; exists {
		return nil, fmt.Errorf("mailbox %q already registered", name)
	}
	box := &memoryBox{ch: make(chan []byte, memoryMailboxBuffer)}
	d.boxes[name] = box
	return box, nil
}

// Lookup returns a sender for an existing mailbox.
func (d *MemoryDirectory) Lookup(ctx context.Context, name string) (Sender, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.boxes[name]; !exists {
		return nil, ErrMailboxNotFound
	}
	return &memorySender{dir: d, name: name}, nil
}

// Unregister removes a mailbox and closes its message stream. Unregistering
// an unknown name is a no-op so deferred cleanup never fails.
func (d *MemoryDirectory) Unregister(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	box, exists := d.boxes[name]
	if !exists {
		return nil
	}
	delete(d.boxes, name)
	if !box.closed {
		box.closed = true
		close(box.ch)
	}
	return nil
}

func (b *memoryBox) Messages() <-chan []byte {
	return b.ch
}

type memorySender struct {
	dir  *MemoryDirectory
	name string
}

// Send delivers best-effort: a full or vanished mailbox drops the message,
// matching the lossy contract of the cross-process directory.
func (s *memorySender) Send(ctx context.Context, payload []byte) error {
	s.dir.mu.Lock()
	box, exists := s.dir.boxes[s.name]
	s.dir.mu.Unlock()

	if !exists {
		return ErrMailboxNotFound
	}

	select {
	case box.ch <- payload:
		return nil
	default:
		return fmt.Errorf("mailbox %q full", s.name)
	}
}

var _ Directory = (*MemoryDirectory)(nil)

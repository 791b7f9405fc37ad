package expect

import "sync"

// buffer accumulates transport output ahead of consumption. The reader
// goroutine appends; the race loop consumes through a winning match's end
// offset. All access goes through the mutex so scans observe a stable slice
// while the reader keeps pulling from the transport.
//
// Consumption is monotonic: offset never decreases, and consumed bytes are
// never re-delivered.
type buffer struct {
	mu     sync.Mutex
	data   []byte
	offset int64
}

func (b *buffer) append(p []byte) {
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
}

// view runs scan over the unconsumed bytes and discards the prefix of the
// length scan returns. scan must not retain data beyond the call.
func (b *buffer) view(scan func(data []byte) (consume int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := scan(b.data)
	if n <= 0 {
		return
	}
	if n > len(b.data) {
		n = len(b.data)
	}
	b.data = append(b.data[:0], b.data[n:]...)
	b.offset += int64(n)
}

// snapshot copies the unconsumed bytes, for timeout and EOF error payloads.
func (b *buffer) snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// consumed is the total number of bytes discarded since the session spawned.
func (b *buffer) consumed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

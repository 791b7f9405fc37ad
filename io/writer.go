package io

import (
	"io"
	"sync"
)

// NewMultiWriter builds a concurrency-safe fan-out writer whose sink set
// can grow and shrink while writes are in flight. A writer appended
// mid-stream first receives the most recent write, so a transcript sink
// attached late still starts with the latest output.
func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// MultiWriter fans every write out to all attached writers.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
	last    []byte
}

// Append attaches writers, replaying the last write to each first.
func (m *MultiWriter) Append(writers ...io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.last) > 0 {
		for _, w := range writers {
			if _, err := w.Write(m.last); err != nil {
				return err
			}
		}
	}

	m.writers = append(m.writers, writers...)
	return nil
}

// Remove detaches writers previously passed to NewMultiWriter or Append.
func (m *MultiWriter) Remove(writers ...io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.writers) - 1; i >= 0; i-- {
		for _, w := range writers {
			if m.writers[i] == w {
				m.writers = append(m.writers[:i], m.writers[i+1:]...)
				break
			}
		}
	}
}

// Len reports the number of attached writers.
func (m *MultiWriter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writers)
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = append(m.last[:0], p...)

	for _, w := range m.writers {
		n, err := w.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

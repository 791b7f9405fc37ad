package expect

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_ViewConsumesPrefix(t *testing.T) {
	b := &buffer{}
	b.append([]byte("hello world"))

	b.view(func(data []byte) int {
		assert.Equal(t, []byte("hello world"), data)
		return 6
	})

	assert.Equal(t, []byte("world"), b.snapshot())
	assert.Equal(t, int64(6), b.consumed())
	assert.Equal(t, 5, b.len())
}

func TestBuffer_ViewZeroConsumesNothing(t *testing.T) {
	b := &buffer{}
	b.append([]byte("stay"))

	b.view(func(data []byte) int { return 0 })

	assert.Equal(t, []byte("stay"), b.snapshot())
	assert.Equal(t, int64(0), b.consumed())
}

func TestBuffer_ViewClampsOverconsume(t *testing.T) {
	b := &buffer{}
	b.append([]byte("abc"))

	b.view(func(data []byte) int { return 10 })

	assert.Equal(t, 0, b.len())
	assert.Equal(t, int64(3), b.consumed())
}

func TestBuffer_ConsumedIsMonotonic(t *testing.T) {
	b := &buffer{}
	var last int64
	for i := 0; i < 10; i++ {
		b.append([]byte("chunk"))
		b.view(func(data []byte) int { return 2 })
		c := b.consumed()
		require.GreaterOrEqual(t, c, last)
		last = c
	}
	assert.Equal(t, int64(20), last)
}

func TestBuffer_ConcurrentAppendAndScan(t *testing.T) {
	b := &buffer{}
	const writers = 4
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.append([]byte("x"))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	// Scans run against whatever is buffered and must only ever see 'x'.
	for {
		select {
		case <-done:
			b.view(func(data []byte) int {
				assert.Equal(t, bytes.Repeat([]byte("x"), len(data)), data)
				return len(data)
			})
			assert.Equal(t, int64(writers*perWriter), b.consumed())
			return
		default:
			b.view(func(data []byte) int {
				require.Equal(t, bytes.Repeat([]byte("x"), len(data)), data)
				return 0
			})
		}
	}
}

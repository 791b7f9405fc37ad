// Package io carries the byte-plumbing helpers shared by the session reader
// and the observers: a context-cancellable reader and a dynamic fan-out
// writer.
package io

import (
	"context"
	"io"
)

// NewContextReader wraps r so reads abandon early when ctx is done. The
// underlying read keeps running in its goroutine until it returns; its
// result is discarded after cancellation. This lets a caller stop waiting
// on a transport without closing it.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return contextReader{Reader: r, ctx: ctx}
}

type contextReader struct {
	io.Reader
	ctx context.Context
}

type readResult struct {
	n   int
	err error
}

func (r contextReader) Read(p []byte) (int, error) {
	c := make(chan readResult, 1)

	go func() {
		defer close(c)

		select {
		case <-r.ctx.Done():
			c <- readResult{0, r.ctx.Err()}
			return
		default:
		}

		n, err := r.Reader.Read(p)
		c <- readResult{n, err}
	}()

	select {
	case rr := <-c:
		return rr.n, rr.err
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}

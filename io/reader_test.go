package io

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type readFunc func(p []byte) (int, error)

func (f readFunc) Read(p []byte) (int, error) { return f(p) }

func Test_ContextReader(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		r := bytes.NewBufferString("chunk1")
		w := bytes.NewBuffer(nil)

		_, _ = io.Copy(w, NewContextReader(context.Background(), r))
		want := "chunk1"
		got := w.String()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("want=%s got=%s:\n%s", want, got, diff)
		}
	})

	t.Run("pass in canceled context", func(t *testing.T) {
		t.Parallel()

		r := readFunc(func(p []byte) (int, error) {
			t.Error("should never get here")
			return 0, nil
		})
		w := bytes.NewBuffer(nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := io.Copy(w, NewContextReader(ctx, r))
		want := context.Canceled
		got := err
		if diff := cmp.Diff(want.Error(), got.Error()); diff != "" {
			t.Errorf("want=%s got=%s:\n%s", want, got, diff)
		}
	})

	t.Run("cancel context during read", func(t *testing.T) {
		t.Parallel()

		blocked := make(chan struct{})
		r := readFunc(func(p []byte) (int, error) {
			<-blocked
			return 0, io.EOF
		})
		w := bytes.NewBuffer(nil)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()
		_, err := io.Copy(w, NewContextReader(ctx, r))
		close(blocked)

		want := context.Canceled
		got := err
		if diff := cmp.Diff(want.Error(), got.Error()); diff != "" {
			t.Errorf("want=%s got=%s:\n%s", want, got, diff)
		}
	})
}

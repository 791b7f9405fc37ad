package expect

import (
	"context"
	"errors"
	"io"

	uio "github.com/praxiomlabs/expect/io"
)

// Interact copies in to the session until ctx is done, in reaches EOF, or a
// send fails. It is how a caller hands its own terminal to the child after
// a scripted prologue: pair it with a transcript sink on os.Stdout for the
// output direction. Cancellation and EOF return nil; the session stays
// usable.
func (s *Session) Interact(ctx context.Context, in io.Reader) error {
	r := uio.NewContextReader(ctx, in)
	chunk := make([]byte, s.chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if serr := s.Send(chunk[:n]); serr != nil {
				return serr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

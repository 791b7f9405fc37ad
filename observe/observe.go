// Package observe holds side-effect observers that attach to a session's
// event emitter: transcript recording and metrics. Observers consume the
// emitter's output and lifecycle topics only; they never touch the buffer
// or the match path, so their presence cannot change expect outcomes.
package observe

import (
	"github.com/olebedev/emitter"

	"github.com/praxiomlabs/expect"
)

// Detach unsubscribes an observer and stops its goroutine.
type Detach func()

// subscribe fans one emitter's output and lifecycle topics into the given
// handlers on a dedicated goroutine until the returned Detach is called.
func subscribe(em *emitter.Emitter, onOutput func(expect.OutputChunk), onLifecycle func(expect.LifecycleEvent)) Detach {
	outCh := em.On(expect.TopicOutput)
	lifeCh := em.On(expect.TopicLifecycle)
	done := make(chan struct{})

	go func() {
		outCh, lifeCh := outCh, lifeCh
		for outCh != nil || lifeCh != nil {
			select {
			case evt, ok := <-outCh:
				if !ok {
					outCh = nil
					continue
				}
				if len(evt.Args) == 0 {
					continue
				}
				if chunk, ok := evt.Args[0].(expect.OutputChunk); ok && onOutput != nil {
					onOutput(chunk)
				}
			case evt, ok := <-lifeCh:
				if !ok {
					lifeCh = nil
					continue
				}
				if len(evt.Args) == 0 {
					continue
				}
				if le, ok := evt.Args[0].(expect.LifecycleEvent); ok && onLifecycle != nil {
					onLifecycle(le)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		em.Off(expect.TopicOutput, outCh)
		em.Off(expect.TopicLifecycle, lifeCh)
		close(done)
	}
}

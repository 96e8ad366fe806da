package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrDeadlineExceeded is returned by RunWithDeadline when the wrapped work
// did not complete before the deadline elapsed.
var ErrDeadlineExceeded = errors.New("engine deadline exceeded")

// Work is an opaque, potentially long-running, non-cancellable unit of
// computation wrapped by the invoker.
type Work func() (*Result, error)

// RunWithDeadline runs work on its own goroutine and returns either the
// work's outcome or ErrDeadlineExceeded, whichever comes first.
//
// There is no true cancellation: on timeout the invoker stops waiting, but
// the orphaned work keeps executing until it finishes on its own. The result
// channel is buffered so the orphan can deliver its result and exit instead
// of leaking a blocked goroutine. A panic inside work is recovered and
// surfaced as an error so a misbehaving engine cannot crash the caller's
// request.
func RunWithDeadline(deadline time.Duration, work Work) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}

	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{nil, fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		res, err := work()
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		log.Warn().
			Dur("deadline", deadline).
			Dur("elapsed", time.Since(start)).
			Msg("Engine invocation timed out, abandoning wait")
		return nil, ErrDeadlineExceeded
	}
}

// Package resilience implements the Resilience Shell: the outer envelope
// every hook invocation runs inside, guaranteeing the host process never
// blocks or crashes because of a bug or slow call inside the dispatcher
// (spec.md §4.5).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// panicSignal carries a recovered panic value out of fn's goroutine as an
// error, so errgroup.Group's normal error-propagation path (the value a
// goroutine returns, surfaced by g.Wait()) is what tells Run a panic
// happened — not a side channel racing the same information a second way.
type panicSignal struct{ value any }

func (p panicSignal) Error() string { return fmt.Sprintf("panic: %v", p.value) }

// Outcome is the result of running a guarded call: either it completed
// (Result, Err set from the call itself), or the shell stepped in
// (Timeout/Panicked set, Err carries the shell's own diagnostic).
type Outcome struct {
	Result    []byte
	Err       error
	TimedOut  bool
	Panicked  bool
	PanicInfo string
}

// Run executes fn on its own goroutine and races it against timeout,
// recovering any panic fn raises so it never propagates to the host
// process. Exactly one of (normal completion, timeout, panic) determines
// the returned Outcome — spec.md's exit code policy (0 nominal, panics
// and timeouts always 0) is applied by the caller based on these fields,
// never by letting an error escape this function.
func Run(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) ([]byte, error)) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var result []byte
	var callErr error
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicSignal{value: r}
			}
		}()
		result, callErr = fn(gctx)
		return callErr
	})

	// g.Wait() is the actual gate on fn's completion: it blocks until the
	// goroutine returns, and its return value is exactly what the
	// goroutine's named err carried out — including a recovered panic,
	// which g.Go's happens-before guarantee (the deferred recover's write
	// to err completes before the goroutine returns, which completes
	// before g.Wait() unblocks) makes safe to read here without a race.
	waitCh := make(chan error, 1)
	go func() { waitCh <- g.Wait() }()

	select {
	case err := <-waitCh:
		var ps panicSignal
		if errors.As(err, &ps) {
			return Outcome{Panicked: true, PanicInfo: fmt.Sprint(ps.value)}
		}
		return Outcome{Result: result, Err: callErr}
	case <-ctx.Done():
		return Outcome{TimedOut: true, Err: ctx.Err()}
	}
}

// ExitCode implements spec.md §7's exit code policy: 0 for a nominal
// completion or a shell-absorbed timeout/panic, 1 only when the
// dispatcher explicitly signals a host-facing warning via Err.
func (o Outcome) ExitCode() int {
	if o.TimedOut || o.Panicked {
		return 0
	}
	if o.Err != nil {
		if hw, ok := o.Err.(HostWarning); ok && hw.Warn() {
			return 1
		}
	}
	return 0
}

// HostWarning is implemented by dispatcher errors that should surface as
// exit code 1 rather than being absorbed silently.
type HostWarning interface {
	error
	Warn() bool
}

package virtualloop

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coregate/wsloop/future"
)

// AwaitFuture resolves a future created on l from outside the loop. It
// exists because futures only complete when something advances the
// loop, and advancement must itself be driven by a caller — a naive
// blocking Get from outside the loop would deadlock forever.
//
// Three sub-tasks race: forwarding f to a local promise, a spinner that
// repeatedly calls l.Run to keep the loop progressing while something
// else concurrently feeds it work, and a timer that fails the local
// promise with ErrTimeoutAwaitingFuture once timeout elapses. The first
// to settle the local promise wins. The spinner and the timer return as
// soon as the local promise settles; the forwarder, blocked on f, is
// released through the shared errgroup context, which is cancelled when
// the timer returns its timeout error.
func AwaitFuture[T any](ctx context.Context, l *Loop, f *future.Future[T], timeout time.Duration) (T, error) {
	local := future.NewPromise[T]()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := f.Get(gctx)
		if err != nil {
			local.Fail(err)
			return err
		}
		local.Succeed(v)
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-local.Future().Done():
				return nil
			default:
				l.Run()
				runtime.Gosched()
			}
		}
	})

	g.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-local.Future().Done():
			return nil
		case <-timer.C:
			local.Fail(ErrTimeoutAwaitingFuture)
			// One final Run after failing local, so tasks due at the
			// current now are executed before the group unwinds. The
			// non-nil return below is what cancels gctx and releases
			// the forwarder still blocked on f.
			l.Run()
			return ErrTimeoutAwaitingFuture
		}
	})

	_ = g.Wait()
	return local.Future().Get(context.Background())
}

package virtualloop

import (
	"errors"

	"github.com/gravitational/trace"
)

// ErrShutdown is the error a task's future (or failHandler) receives when
// the task is submitted once ShutdownGracefully has begun (during or after
// the drain), or is still queued when the drain ends. Tasks already queued
// when ShutdownGracefully starts are run by the drain, not failed.
var ErrShutdown = trace.Errorf("virtualloop: shutdown")

// ErrTimeoutAwaitingFuture is returned by AwaitFuture when the timeout
// elapses before the awaited future settles.
var ErrTimeoutAwaitingFuture = trace.Errorf("virtualloop: timeout awaiting future")

// IsShutdown reports whether err is (or wraps) ErrShutdown.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrShutdown)
}

// IsTimeoutAwaitingFuture reports whether err is (or wraps)
// ErrTimeoutAwaitingFuture.
func IsTimeoutAwaitingFuture(err error) bool {
	return errors.Is(err, ErrTimeoutAwaitingFuture)
}

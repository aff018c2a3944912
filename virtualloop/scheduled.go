package virtualloop

import "github.com/coregate/wsloop/future"

// Scheduled is the handle returned by ScheduleTask: a future for the
// task's result plus a cancellation operation. Cancelling does not fail
// the future; it merely prevents the task from ever running, leaving the
// future unfulfilled unless the caller separately fails it.
type Scheduled[T any] struct {
	id     int64
	loop   *Loop
	result *future.Promise[T]
}

// Future returns the future tracking this task's eventual result.
func (s *Scheduled[T]) Future() *future.Future[T] {
	return s.result.Future()
}

// Cancel removes the task from the loop's queue by id, synchronously. A
// task that already ran, or does not exist, is left alone.
func (s *Scheduled[T]) Cancel() {
	s.loop.cancel(s.id)
}

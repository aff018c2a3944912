package virtualloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/coregate/wsloop/future"
)

// Loop is a deterministic, time-controllable executor. Time never
// advances on its own; only Run, AdvanceTimeBy, AdvanceTimeTo, and the
// drain in ShutdownGracefully run scheduled work, and only as far as the
// caller asks.
//
// "now" and idCounter are plain atomics so Scheduled handles can be
// constructed synchronously from whatever goroutine calls ScheduleTask.
// Everything else — the task queue, the insertOrder counter, and (in
// debug mode) the promise-creation map — is serial-confined behind mu,
// which plays the role of the single-producer/single-consumer serial
// executor: held only around direct mutations, never across a task's
// work() or a failHandler, so a task that re-enters the loop (e.g. by
// calling Execute from inside its own work) never deadlocks against
// itself. ExecuteInContext is the one exception: it holds mu across its
// callback.
type Loop struct {
	now       int64
	idCounter int64

	mu          sync.Mutex
	queue       *taskQueue
	taskCounter int64
	promises    map[string]promiseSite

	shuttingDown int32

	debug  bool
	clock  *clockwork.FakeClock
	logger *zap.Logger
}

// LoopOption configures a Loop at construction time.
type LoopOption func(*Loop)

// WithDebugPromiseTracking enables promise-creation-site tracking (spec
// §4.2). Off by default; meant for test builds diagnosing promise leaks.
func WithDebugPromiseTracking(enabled bool) LoopOption {
	return func(l *Loop) { l.debug = enabled }
}

// WithLoopLogger attaches a structured logger; defaults to a no-op logger.
func WithLoopLogger(log *zap.Logger) LoopOption {
	return func(l *Loop) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewLoop constructs an empty Loop with now initialized to zero.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:    newTaskQueue(),
		promises: make(map[string]promiseSite),
		clock:    clockwork.NewFakeClockAt(time.Unix(0, 0).UTC()),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NowNanos returns the current virtual time in nanoseconds since loop
// creation.
func (l *Loop) NowNanos() int64 { return atomic.LoadInt64(&l.now) }

// Now presents the current virtual time as a time.Time, advanced in
// lockstep with NowNanos. It never drives scheduling itself; it exists
// purely so callers can log or compare against wall-clock-shaped values.
func (l *Loop) Now() time.Time { return l.clock.Now() }

func (l *Loop) isShuttingDown() bool {
	return atomic.LoadInt32(&l.shuttingDown) == 1
}

// Stats is a point-in-time debug/observability snapshot: pending task
// count, current virtual now, and outstanding tracked-promise count (the
// last is always zero unless WithDebugPromiseTracking is enabled).
type Stats struct {
	PendingTasks        int
	NowNanos            int64
	OutstandingPromises int
}

// Stats reports a snapshot of the loop's current queue depth, virtual
// time, and (in debug mode) outstanding promise count, useful for tests
// and for exposing to a metrics sink.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		PendingTasks:        l.queue.len(),
		NowNanos:            atomic.LoadInt64(&l.now),
		OutstandingPromises: len(l.promises),
	}
}

// enqueue is the one place that mutates queue/taskCounter. Called with mu
// unlocked; it takes the lock itself for the duration of the mutation.
func (l *Loop) enqueue(id, readyTime int64, work func(), failHandler func(error)) {
	l.mu.Lock()
	if l.isShuttingDown() {
		l.mu.Unlock()
		if failHandler != nil {
			failHandler(ErrShutdown)
		}
		return
	}
	l.taskCounter++
	l.queue.push(&scheduledTask{
		id:          id,
		readyTime:   readyTime,
		insertOrder: l.taskCounter,
		work:        work,
		failHandler: failHandler,
	})
	l.mu.Unlock()
}

// scheduleRaw assigns an id synchronously (so a Scheduled handle can be
// armed for cancellation before the task might ever run) and enqueues
// the task.
func (l *Loop) scheduleRaw(readyTime int64, work func(), failHandler func(error)) int64 {
	id := atomic.AddInt64(&l.idCounter, 1)
	l.enqueue(id, readyTime, work, failHandler)
	return id
}

// Execute is sugar for scheduling work at the current now; it runs on
// the next advancement.
func (l *Loop) Execute(work func()) {
	l.scheduleRaw(l.NowNanos(), work, nil)
}

// cancel removes a task by id. A task that already ran, or never
// existed, is left alone.
func (l *Loop) cancel(id int64) {
	l.mu.Lock()
	l.queue.removeByID(id)
	l.mu.Unlock()
}

// ScheduleTask enqueues work to run once the loop advances past
// deadlineNanos, returning a handle carrying a future for its result.
func ScheduleTask[T any](l *Loop, deadlineNanos int64, work func() (T, error)) *Scheduled[T] {
	p := future.NewPromise[T]()
	siteID := l.trackPromise()
	id := l.scheduleRaw(deadlineNanos, func() {
		v, err := work()
		l.untrackPromise(siteID)
		if err != nil {
			p.Fail(err)
			return
		}
		p.Succeed(v)
	}, func(err error) {
		l.untrackPromise(siteID)
		p.Fail(err)
	})
	return &Scheduled[T]{id: id, loop: l, result: p}
}

// ScheduleTaskAfter is sugar for ScheduleTask(l, l.NowNanos()+delay, work);
// delay is resolved against now at call time.
func ScheduleTaskAfter[T any](l *Loop, delay time.Duration, work func() (T, error)) *Scheduled[T] {
	return ScheduleTask(l, l.NowNanos()+int64(delay), work)
}

// ExecuteInContext submits work to the serial queue and awaits its
// result, guaranteeing no other loop mutation interleaves with it. work
// must not itself call back into the loop's scheduling API — doing so
// deadlocks, the same programmer-error class as awaiting a loop future
// from inside the loop (spec §7).
func ExecuteInContext[T any](l *Loop, work func() T) T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return work()
}

// runToTarget implements the §4.2 task-execution algorithm: newTime is
// pinned to max(target, now); due tasks are popped in (readyTime,
// insertOrder) batches and run with mu released, so a task's work may
// freely call back into Execute/ScheduleTask/cancel.
func (l *Loop) runToTarget(target int64) {
	for {
		l.mu.Lock()
		prevNow := atomic.LoadInt64(&l.now)
		newTime := target
		if prevNow > newTime {
			newTime = prevNow
		}

		head := l.queue.peek()
		if head == nil || head.readyTime > newTime {
			atomic.StoreInt64(&l.now, newTime)
			l.advanceClockLocked(prevNow, newTime)
			l.mu.Unlock()
			return
		}

		t := head.readyTime
		var batch []*scheduledTask
		for {
			h := l.queue.peek()
			if h == nil || h.readyTime != t {
				break
			}
			batch = append(batch, l.queue.pop())
		}
		atomic.StoreInt64(&l.now, t)
		l.advanceClockLocked(prevNow, t)
		l.mu.Unlock()

		for _, task := range batch {
			task.work()
		}
	}
}

func (l *Loop) advanceClockLocked(prevNow, newNow int64) {
	if newNow > prevNow {
		l.clock.Advance(time.Duration(newNow - prevNow))
	}
}

// Run advances time to the current now, executing all tasks whose
// readyTime <= now (for example tasks submitted via Execute since the
// last advancement) without moving now forward.
func (l *Loop) Run() {
	l.runToTarget(l.NowNanos())
}

// AdvanceTimeBy advances now by delta, executing due tasks in order. A
// negative delta is a no-op: it neither moves now nor runs due tasks.
func (l *Loop) AdvanceTimeBy(delta time.Duration) {
	if delta < 0 {
		return
	}
	l.runToTarget(l.NowNanos() + int64(delta))
}

// AdvanceTimeTo advances now to targetNanos if it is later than now,
// executing due tasks; otherwise now is left unchanged but any tasks
// with readyTime <= now still run.
func (l *Loop) AdvanceTimeTo(targetNanos int64) {
	l.runToTarget(targetNanos)
}

// ShutdownGracefully marks the loop closed, then drains every
// currently-enqueued task, running each to completion in deadline order
// and advancing now accordingly. Any task enqueued once the loop is
// closed (including one enqueued by a task still draining) fails
// immediately with ErrShutdown. Idempotent.
func (l *Loop) ShutdownGracefully() {
	l.mu.Lock()
	lastReady := atomic.LoadInt64(&l.now)
	for _, t := range l.queue.h {
		if t.readyTime > lastReady {
			lastReady = t.readyTime
		}
	}
	l.mu.Unlock()

	// Mark the loop as shutting down before draining, so any task
	// enqueued while the drain below is running (e.g. from inside
	// another task's work) is rejected with ErrShutdown instead of
	// joining the batch. Tasks already in the queue still run: they
	// were pushed under the lock above and runToTarget pops straight
	// from the queue regardless of this flag.
	atomic.StoreInt32(&l.shuttingDown, 1)
	l.runToTarget(lastReady)

	// Anything left (there ordinarily shouldn't be, since lastReady was
	// the latest readyTime queued) is failed rather than silently
	// dropped, so ShutdownGracefully stays idempotent.
	l.mu.Lock()
	leftover := l.queue.drainAll()
	l.mu.Unlock()
	for _, t := range leftover {
		if t.failHandler != nil {
			t.failHandler(ErrShutdown)
		}
	}
}

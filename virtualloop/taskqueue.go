package virtualloop

import "container/heap"

// scheduledTask is the internal record backing a Scheduled handle. While
// it sits in a Loop's queue it is only read or written with that Loop's
// mu held.
type scheduledTask struct {
	id          int64
	readyTime   int64
	insertOrder int64
	work        func()
	failHandler func(error)
	index       int // heap.Interface bookkeeping, -1 once popped/removed
}

// taskHeap orders scheduledTasks by (readyTime, insertOrder), both
// ascending, giving FIFO behavior for equal deadlines (spec §3).
type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].readyTime != h[j].readyTime {
		return h[i].readyTime < h[j].readyTime
	}
	return h[i].insertOrder < h[j].insertOrder
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*scheduledTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// taskQueue wraps taskHeap with by-id removal. Removal by id looks the
// task up in byID and removes it at its tracked heap index, so it is
// heap-logarithmic like push and pop; peek is constant-time.
type taskQueue struct {
	h     taskHeap
	byID  map[int64]*scheduledTask
}

func newTaskQueue() *taskQueue {
	return &taskQueue{byID: make(map[int64]*scheduledTask)}
}

func (q *taskQueue) push(t *scheduledTask) {
	q.byID[t.id] = t
	heap.Push(&q.h, t)
}

func (q *taskQueue) len() int { return q.h.Len() }

func (q *taskQueue) peek() *scheduledTask {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0]
}

func (q *taskQueue) pop() *scheduledTask {
	t := heap.Pop(&q.h).(*scheduledTask)
	delete(q.byID, t.id)
	return t
}

// removeByID removes a task by id, reporting whether it was present. A
// task already popped (executed) or never enqueued is a no-op, matching
// "cancelling a nonexistent or already-run task is a no-op" (spec §4.2).
func (q *taskQueue) removeByID(id int64) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, t.index)
	delete(q.byID, id)
	return true
}

// drainAll empties the queue in deadline order, returning the removed tasks.
func (q *taskQueue) drainAll() []*scheduledTask {
	out := make([]*scheduledTask, 0, q.len())
	for q.len() > 0 {
		out = append(out, q.pop())
	}
	return out
}

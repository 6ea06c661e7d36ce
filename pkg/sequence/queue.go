package sequence

import "container/heap"

// Item is one entry of a Queue. Keep it to change its priority in place.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
	index    int
}

type items[T any] []*Item[T]

func (q items[T]) Len() int { return len(q) }

// Less orders by priority, then by insertion so equal priorities dequeue
// first-in first-out.
func (q items[T]) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].seq < q[j].seq
}

func (q items[T]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *items[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *items[T]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Queue is a min-priority queue: the lowest priority is dequeued first.
type Queue[T any] struct {
	items items[T]
	seq   uint64
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Enqueue(value T, priority int) *Item[T] {
	item := &Item[T]{Value: value, Priority: priority, seq: q.seq}
	q.seq++
	heap.Push(&q.items, item)
	return item
}

func (q *Queue[T]) Dequeue() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.items).(*Item[T]).Value, true
}

// Peek returns the head without removing it.
func (q *Queue[T]) Peek() (*Item[T], bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Update changes the priority of an item still in the queue. Its place
// among equal priorities is kept.
func (q *Queue[T]) Update(item *Item[T], priority int) {
	if item.index < 0 {
		return
	}
	item.Priority = priority
	heap.Fix(&q.items, item.index)
}

func (q *Queue[T]) Len() int { return len(q.items) }

package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](q *Queue[T]) []T {
	var out []T
	for q.Len() > 0 {
		v, _ := q.Dequeue()
		out = append(out, v)
	}
	return out
}

func TestQueueOrdersByPriorityThenInsertion(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("c", 3)
	q.Enqueue("a1", 1)
	q.Enqueue("b", 2)
	q.Enqueue("a2", 1)
	q.Enqueue("a3", 1)

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a1", head.Value)
	assert.Equal(t, []string{"a1", "a2", "a3", "b", "c"}, drain(q))

	_, ok = q.Dequeue()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestQueueUpdate(t *testing.T) {
	q := NewQueue[int]()
	items := make([]*Item[int], 4)
	for i := range items {
		items[i] = q.Enqueue(i, 0)
	}

	// Deal six units to the least loaded each time.
	var order []int
	for n := 0; n < 6; n++ {
		head, _ := q.Peek()
		order = append(order, head.Value)
		q.Update(head, head.Priority+1)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1}, order)

	gone, _ := q.Dequeue()
	assert.Equal(t, 2, gone)
	q.Update(items[2], -5)
	assert.Equal(t, []int{3, 0, 1}, drain(q), "updating a removed item is a no-op")
}

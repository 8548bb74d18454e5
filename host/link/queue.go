package link

import "fmt"

// OverflowPolicy decides what a full queue gives up
type OverflowPolicy string

const (
	DropOldest OverflowPolicy = "drop_oldest"
	DropNewest OverflowPolicy = "drop_newest"
)

// ParseOverflowPolicy validates a policy name, defaulting to DropOldest
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", DropOldest:
		return DropOldest, nil
	case DropNewest:
		return DropNewest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// queue is a bounded FIFO that never blocks its producers.
// Any number of goroutines may push; one goroutine pops.
type queue[T any] struct {
	ch     chan T
	policy OverflowPolicy
}

func newQueue[T any](capacity int, policy OverflowPolicy) *queue[T] {
	return &queue[T]{
		ch:     make(chan T, capacity),
		policy: policy,
	}
}

// push enqueues v and returns how many items were discarded to respect the
// capacity (v itself under DropNewest, older items under DropOldest)
func (q *queue[T]) push(v T) int {
	select {
	case q.ch <- v:
		return 0
	default:
	}

	if q.policy == DropNewest {
		return 1
	}

	dropped := 0
	for {
		select {
		case <-q.ch:
			dropped++
		default:
		}
		select {
		case q.ch <- v:
			return dropped
		default:
		}
	}
}

// tryPop dequeues without blocking
func (q *queue[T]) tryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (q *queue[T]) len() int {
	return len(q.ch)
}

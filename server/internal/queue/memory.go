package queue

import (
	"context"
)

type inMemoryQueue struct {
	ch chan Job
}

func NewInMemoryQueue(capacity int) Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &inMemoryQueue{
		ch: make(chan Job, capacity),
	}
}

func (q *inMemoryQueue) TryEnqueue(job Job) bool {
	if q == nil || job.Kind == "" {
		return false
	}
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

func (q *inMemoryQueue) Enqueue(ctx context.Context, job Job) bool {
	if q == nil || job.Kind == "" {
		return false
	}
	select {
	case q.ch <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *inMemoryQueue) Dequeue(ctx context.Context) (Job, bool) {
	if q == nil {
		return Job{}, false
	}
	select {
	case job := <-q.ch:
		return job, true
	case <-ctx.Done():
		return Job{}, false
	}
}

func (q *inMemoryQueue) Depth() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *inMemoryQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return cap(q.ch)
}

func (q *inMemoryQueue) Close() error {
	return nil
}

package queue

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Job is one unit of work. Only the id fields relevant to Kind are set.
type Job struct {
	Kind       string `json:"kind"`
	UserID     uint   `json:"user_id,omitempty"`
	ReminderID uint   `json:"reminder_id,omitempty"`
	WatchID    uint   `json:"watch_id,omitempty"`
}

func (j Job) String() string {
	return fmt.Sprintf("%s(user=%d reminder=%d watch=%d)", j.Kind, j.UserID, j.ReminderID, j.WatchID)
}

// Queue delivers jobs at least once to whichever worker dequeues them first.
type Queue interface {
	TryEnqueue(job Job) bool
	Enqueue(ctx context.Context, job Job) bool
	Dequeue(ctx context.Context) (Job, bool)
	Depth() int
	Capacity() int
	Close() error
}

// BuildQueueFromDSN picks a backend from the DSN scheme: memory:// or postgres://.
func BuildQueueFromDSN(dsn string, capacity int) (Queue, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewInMemoryQueue(capacity), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "memory", "mem", "inmem":
		return NewInMemoryQueue(capacity), nil
	case "postgres", "postgresql":
		return NewPostgresQueue(dsn, capacity)
	default:
		return nil, fmt.Errorf("unsupported queue scheme: %s", scheme)
	}
}

package queue

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	postgresOperationTimeout = 5 * time.Second
	postgresPollInterval     = 500 * time.Millisecond
)

type postgresQueue struct {
	db           *gorm.DB
	capacity     int
	pollInterval time.Duration
	lockKey      int64
}

// NewPostgresQueue opens dsn and stores jobs in the jobs table. Workers claim rows with
// FOR UPDATE SKIP LOCKED so one job is handed to one worker.
func NewPostgresQueue(dsn string, capacity int) (Queue, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open queue database")
	}
	return NewGormQueue(db, capacity)
}

// NewGormQueue uses an existing connection.
func NewGormQueue(db *gorm.DB, capacity int) (Queue, error) {
	if capacity <= 0 {
		capacity = 1024
	}
	if err := db.AutoMigrate(&dbmodel.Jobs{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate jobs table")
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte((&dbmodel.Jobs{}).TableName()))
	return &postgresQueue{
		db:           db,
		capacity:     capacity,
		pollInterval: postgresPollInterval,
		lockKey:      int64(h.Sum64() >> 1),
	}, nil
}

func (q *postgresQueue) TryEnqueue(job Job) bool {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()
	return q.tryEnqueue(ctx, job)
}

func (q *postgresQueue) tryEnqueue(ctx context.Context, job Job) bool {
	if job.Kind == "" {
		return false
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return false
	}

	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", q.lockKey).Error; err != nil {
			return err
		}
		var depth int64
		if err := tx.Model(&dbmodel.Jobs{}).Count(&depth).Error; err != nil {
			return err
		}
		if depth >= int64(q.capacity) {
			return errQueueFull
		}
		return tx.Create(&dbmodel.Jobs{
			Kind:      job.Kind,
			Payload:   string(payload),
			CreatedAt: time.Now(),
		}).Error
	})
	return err == nil
}

var errQueueFull = errors.New("queue is full")

func (q *postgresQueue) Enqueue(ctx context.Context, job Job) bool {
	for {
		if q.tryEnqueue(ctx, job) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *postgresQueue) Dequeue(ctx context.Context) (Job, bool) {
	for {
		job, ok := q.tryDequeue(ctx)
		if ok {
			return job, true
		}
		select {
		case <-ctx.Done():
			return Job{}, false
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *postgresQueue) tryDequeue(ctx context.Context) (Job, bool) {
	var job Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []dbmodel.Jobs
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("id asc").Limit(1).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Delete(&dbmodel.Jobs{}, rows[0].ID).Error; err != nil {
			return err
		}
		return json.Unmarshal([]byte(rows[0].Payload), &job)
	})
	if err != nil {
		return Job{}, false
	}
	return job, true
}

func (q *postgresQueue) Depth() int {
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()
	var depth int64
	if err := q.db.WithContext(ctx).Model(&dbmodel.Jobs{}).Count(&depth).Error; err != nil {
		return 0
	}
	return int(depth)
}

func (q *postgresQueue) Capacity() int {
	return q.capacity
}

func (q *postgresQueue) Close() error {
	sqlDB, err := q.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

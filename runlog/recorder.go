package runlog

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Appender persists one event. Implementations do not need to be safe
// for concurrent use; the Recorder serializes calls.
type Appender interface {
	Append(ctx context.Context, event Event) (string, error)
}

// SQLAppender appends events through a database handle.
type SQLAppender struct {
	q QueryRower
}

func NewSQLAppender(q QueryRower) *SQLAppender {
	if q == nil {
		return nil
	}
	return &SQLAppender{q: q}
}

func (a *SQLAppender) Append(ctx context.Context, event Event) (string, error) {
	if a == nil || a.q == nil {
		return "", errors.New("sql appender not initialized")
	}
	return Insert(ctx, a.q, event)
}

// Recorder is the single writer of a run's event log. Column workers
// emit concurrently; the mutex totally orders their events.
type Recorder struct {
	mu       sync.Mutex
	appender Appender
	appended int64
}

func NewRecorder(appender Appender) *Recorder {
	if appender == nil {
		return nil
	}
	return &Recorder{appender: appender}
}

func (r *Recorder) Record(ctx context.Context, event Event) error {
	if r == nil || r.appender == nil {
		return errors.New("recorder not initialized")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if _, err := r.appender.Append(ctx, event); err != nil {
		return err
	}
	r.appended++
	return nil
}

// Appended reports how many events the recorder has written.
func (r *Recorder) Appended() int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended
}

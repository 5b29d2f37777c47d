package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr1hm/guard-dispatch/internal/worker"
)

var ErrQueueFull = errors.New("notification queue full")

// Queue delivers notifications to the wrapped Notifier on a worker pool so the
// caller never waits on a transport.
type Queue struct {
	pool *worker.Pool[Notification]
}

var _ Notifier = (*Queue)(nil)

func NewQueue(next Notifier, workers, buffer int) *Queue {
	return &Queue{
		pool: worker.New("notify", workers, buffer, func(ctx context.Context, n Notification) error {
			if err := next.Notify(ctx, n); err != nil {
				return fmt.Errorf("notify guard %s about alert %s: %w", n.GuardID, n.AlertID, err)
			}
			return nil
		}),
	}
}

func (q *Queue) Start(ctx context.Context) {
	q.pool.Start(ctx)
}

// Notify enqueues n. The only errors are ErrQueueFull and worker.ErrStopped.
func (q *Queue) Notify(_ context.Context, n Notification) error {
	err := q.pool.TrySubmit(n)
	if errors.Is(err, worker.ErrFull) {
		return ErrQueueFull
	}
	return err
}

// Stop delivers what is already queued and returns.
func (q *Queue) Stop() {
	q.pool.Stop()
}

package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/riverqueue/river"

	"github.com/PaulFidika/mealkit/servicepoint"
)

// ServicePointChangedArgs is enqueued by the administrative layer after it
// rotates a service point's secret or edits its record. Empty
// ServicePointIDs flushes every cached service point.
type ServicePointChangedArgs struct {
	ServicePointIDs []string `json:"service_point_ids,omitempty"`
}

func (ServicePointChangedArgs) Kind() string { return "service_point_changed" }

func (ServicePointChangedArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 25}
}

// InvalidationWorker drops cached service points named by a
// ServicePointChangedArgs job.
type InvalidationWorker struct {
	river.WorkerDefaults[ServicePointChangedArgs]
	Points servicepoint.Invalidator
}

func (w *InvalidationWorker) Work(ctx context.Context, job *river.Job[ServicePointChangedArgs]) error {
	if w.Points == nil {
		return errors.New("jobs: invalidation worker has no directory")
	}
	if len(job.Args.ServicePointIDs) == 0 {
		return w.Points.Flush(ctx)
	}
	return w.Points.Invalidate(ctx, job.Args.ServicePointIDs...)
}

func (w *InvalidationWorker) Timeout(*river.Job[ServicePointChangedArgs]) time.Duration {
	return 10 * time.Second
}

// EnqueueServicePointChanged queues an invalidation for ids.
func EnqueueServicePointChanged(ctx context.Context, client Inserter, ids ...string) error {
	_, err := client.Insert(ctx, ServicePointChangedArgs{ServicePointIDs: ids}, nil)
	return err
}

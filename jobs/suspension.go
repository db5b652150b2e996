// Package jobs runs the engine's background work: incident fan-out and
// service point invalidation through a river queue, and scheduled cache
// maintenance through cron.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// SuspensionArgs is the river payload for a suspended credential.
type SuspensionArgs struct {
	Incident core.Incident `json:"incident"`
}

func (SuspensionArgs) Kind() string { return "credential_suspended" }

// InsertOpts dedupes re-raised incidents for the same credential and counter
// within an hour.
func (SuspensionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 10,
		UniqueOpts:  river.UniqueOpts{ByArgs: true, ByPeriod: time.Hour},
	}
}

// Notifier delivers a suspension to whoever handles security incidents.
type Notifier interface {
	NotifySuspension(ctx context.Context, in core.Incident) error
}

// LogNotifier writes incidents to the log. It is the fallback when no
// external notifier is configured.
type LogNotifier struct{ Log logrus.FieldLogger }

func (n LogNotifier) NotifySuspension(_ context.Context, in core.Incident) error {
	log := n.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"identity":      in.IdentityID,
		"credential_id": in.CredentialID,
		"service_point": in.ServicePointID,
		"counter":       in.Counter,
		"device_id":     in.DeviceID,
		"at":            in.At.Format(time.RFC3339),
	}).Warn("credential suspended after counter replay")
	return nil
}

// SuspensionWorker hands queued incidents to a Notifier.
type SuspensionWorker struct {
	river.WorkerDefaults[SuspensionArgs]
	Notifier Notifier
}

func (w *SuspensionWorker) Work(ctx context.Context, job *river.Job[SuspensionArgs]) error {
	if w.Notifier == nil {
		return errors.New("jobs: suspension worker has no notifier")
	}
	return w.Notifier.NotifySuspension(ctx, job.Args.Incident)
}

func (w *SuspensionWorker) Timeout(*river.Job[SuspensionArgs]) time.Duration { return 30 * time.Second }

// Inserter is the slice of river.Client the sink needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverSink publishes incidents onto the queue. It satisfies core.IncidentSink.
type RiverSink struct {
	client Inserter
}

var _ core.IncidentSink = (*RiverSink)(nil)

func NewRiverSink(client Inserter) *RiverSink { return &RiverSink{client: client} }

func (s *RiverSink) CredentialSuspended(ctx context.Context, in core.Incident) error {
	_, err := s.client.Insert(ctx, SuspensionArgs{Incident: in}, nil)
	return err
}

// NewWorkers registers every worker this package provides.
func NewWorkers(n Notifier, points servicepoint.Invalidator) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, &SuspensionWorker{Notifier: n})
	river.AddWorker(workers, &InvalidationWorker{Points: points})
	return workers
}

// NewClient builds a river client on pool. maxWorkers <= 0 gives an
// insert-only client that never works jobs.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, maxWorkers int) (*river.Client[pgx.Tx], error) {
	cfg := &river.Config{}
	if maxWorkers > 0 {
		cfg.Queues = map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: maxWorkers}}
		cfg.Workers = workers
	}
	return river.NewClient(riverpgxv5.New(pool), cfg)
}

// Migrate creates or upgrades river's own tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	m, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return 0, err
	}
	res, err := m.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return 0, err
	}
	return len(res.Versions), nil
}

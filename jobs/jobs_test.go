package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/mealkit/core"
)

type recordingNotifier struct {
	got []core.Incident
	err error
}

func (r *recordingNotifier) NotifySuspension(_ context.Context, in core.Incident) error {
	r.got = append(r.got, in)
	return r.err
}

type fakeInserter struct {
	args []river.JobArgs
	err  error
}

func (f *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.args = append(f.args, args)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{Kind: args.Kind()}}, nil
}

func incident() core.Incident {
	return core.Incident{
		IdentityID:     "alice",
		CredentialID:   "cred-1",
		ServicePointID: "sp-1",
		Counter:        7,
		At:             time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC),
	}
}

func TestSuspensionArgs(t *testing.T) {
	args := SuspensionArgs{Incident: incident()}
	assert.Equal(t, "credential_suspended", args.Kind())
	opts := args.InsertOpts()
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Equal(t, time.Hour, opts.UniqueOpts.ByPeriod)
}

func TestSuspensionWorker(t *testing.T) {
	n := &recordingNotifier{}
	w := &SuspensionWorker{Notifier: n}
	job := &river.Job[SuspensionArgs]{JobRow: &rivertype.JobRow{ID: 1}, Args: SuspensionArgs{Incident: incident()}}

	require.NoError(t, w.Work(context.Background(), job))
	require.Len(t, n.got, 1)
	assert.Equal(t, incident(), n.got[0])

	n.err = errors.New("pager down")
	assert.ErrorContains(t, w.Work(context.Background(), job), "pager down")

	assert.Error(t, (&SuspensionWorker{}).Work(context.Background(), job))
}

func TestRiverSink(t *testing.T) {
	ins := &fakeInserter{}
	sink := NewRiverSink(ins)
	require.NoError(t, sink.CredentialSuspended(context.Background(), incident()))
	require.Len(t, ins.args, 1)
	assert.Equal(t, SuspensionArgs{Incident: incident()}, ins.args[0])

	ins.err = errors.New("db gone")
	assert.Error(t, sink.CredentialSuspended(context.Background(), incident()))
}

func TestLogNotifierNeverFails(t *testing.T) {
	assert.NoError(t, LogNotifier{}.NotifySuspension(context.Background(), incident()))
}

type countingFlusher struct{ n atomic.Int32 }

func (c *countingFlusher) Flush(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestFlushScheduler(t *testing.T) {
	f := &countingFlusher{}
	s := NewFlushScheduler(f, "@every 1h", nil)
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	s.RunNow()
	assert.Equal(t, int32(1), f.n.Load())

	<-s.Stop().Done()
	<-s.Stop().Done()
}

func TestFlushSchedulerRejectsBadSpec(t *testing.T) {
	s := NewFlushScheduler(&countingFlusher{}, "not a schedule", nil)
	assert.Error(t, s.Start())
}

type recordingInvalidator struct {
	ids     [][]string
	flushes int
}

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...string) error {
	r.ids = append(r.ids, ids)
	return nil
}

func (r *recordingInvalidator) Flush(context.Context) error {
	r.flushes++
	return nil
}

func TestInvalidationWorker(t *testing.T) {
	inv := &recordingInvalidator{}
	w := &InvalidationWorker{Points: inv}
	ctx := context.Background()

	job := &river.Job[ServicePointChangedArgs]{JobRow: &rivertype.JobRow{ID: 1},
		Args: ServicePointChangedArgs{ServicePointIDs: []string{"sp-1", "sp-2"}}}
	require.NoError(t, w.Work(ctx, job))
	assert.Equal(t, [][]string{{"sp-1", "sp-2"}}, inv.ids)

	job.Args.ServicePointIDs = nil
	require.NoError(t, w.Work(ctx, job))
	assert.Equal(t, 1, inv.flushes)

	assert.Error(t, (&InvalidationWorker{}).Work(ctx, job))
}

func TestEnqueueServicePointChanged(t *testing.T) {
	ins := &fakeInserter{}
	require.NoError(t, EnqueueServicePointChanged(context.Background(), ins, "sp-1"))
	require.Len(t, ins.args, 1)
	assert.Equal(t, "service_point_changed", ins.args[0].Kind())
	assert.Equal(t, ServicePointChangedArgs{ServicePointIDs: []string{"sp-1"}}, ins.args[0])
}

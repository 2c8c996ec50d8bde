package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"billscan/internal/amqp"
	"billscan/internal/core"
	"billscan/internal/services"
	"billscan/internal/storage"
)

type fakeJobs struct {
	jobs      map[string]core.SyncJob
	getErr    error
	staleErr  error
	staleHits atomic.Int32
}

func (f *fakeJobs) GetSyncJobByID(_ context.Context, id string) (core.SyncJob, error) {
	if f.getErr != nil {
		return core.SyncJob{}, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return core.SyncJob{}, storage.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) FailStaleSyncJobs(_ context.Context, _ time.Duration) (int64, error) {
	f.staleHits.Add(1)
	if f.staleErr != nil {
		return 0, f.staleErr
	}
	return 2, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []string
	err error
}

func (r *fakeRunner) Run(_ context.Context, job core.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, job.ID)
	return r.err
}

func TestHandleSyncRequest(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]core.SyncJob{
		"queued":  {ID: "queued", UserID: 1, Status: core.JobQueued},
		"running": {ID: "running", UserID: 1, Status: core.JobRunning},
		"done":    {ID: "done", UserID: 1, Status: core.JobCompleted},
	}}

	tests := []struct {
		name    string
		msg     *amqp.SyncRequest
		runErr  error
		getErr  error
		wantRun bool
		wantErr bool
	}{
		{name: "queued job runs", msg: amqp.NewSyncRequest("queued", 1), wantRun: true},
		{name: "runner failure is acked", msg: amqp.NewSyncRequest("queued", 1), runErr: errors.New("boom"), wantRun: true},
		{name: "already taken", msg: amqp.NewSyncRequest("queued", 1), runErr: services.ErrJobNotQueued, wantRun: true},
		{name: "running job skipped", msg: amqp.NewSyncRequest("running", 1)},
		{name: "finished job skipped", msg: amqp.NewSyncRequest("done", 1)},
		{name: "unknown job dropped", msg: amqp.NewSyncRequest("missing", 1)},
		{name: "foreign user dropped", msg: amqp.NewSyncRequest("queued", 2)},
		{name: "store failure retried", msg: amqp.NewSyncRequest("queued", 1), getErr: errors.New("db locked"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs.getErr = tt.getErr
			runner := &fakeRunner{err: tt.runErr}
			w := NewSyncWorker(jobs, runner, time.Minute)

			err := w.HandleSyncRequest(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ran := len(runner.ran) == 1; ran != tt.wantRun {
				t.Errorf("ran = %v, want %v", runner.ran, tt.wantRun)
			}
		})
	}
}

func TestRecoverStale(t *testing.T) {
	w := NewSyncWorker(&fakeJobs{}, &fakeRunner{}, time.Minute)
	n, err := w.RecoverStale(context.Background())
	if err != nil || n != 2 {
		t.Errorf("RecoverStale = %d, %v", n, err)
	}

	w = NewSyncWorker(&fakeJobs{staleErr: errors.New("db closed")}, &fakeRunner{}, time.Minute)
	if _, err := w.RecoverStale(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestReaperLifecycle(t *testing.T) {
	jobs := &fakeJobs{}
	r := NewReaper(NewSyncWorker(jobs, &fakeRunner{}, time.Minute), 10*time.Millisecond)
	ctx := context.Background()

	if r.IsRunning() {
		t.Fatal("reaper should not be running initially")
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("expected error when starting twice")
	}

	deadline := time.Now().Add(2 * time.Second)
	for jobs.staleHits.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if jobs.staleHits.Load() < 2 {
		t.Errorf("reaper ran %d passes, want at least 2", jobs.staleHits.Load())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.IsRunning() {
		t.Error("reaper still running after Stop")
	}
	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

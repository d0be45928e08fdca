package syncjobs

import (
	"context"
	"sync"

	"github.com/wolfman30/physio-quota-tracker/internal/pms"
	"github.com/wolfman30/physio-quota-tracker/internal/reconcile"
	"github.com/wolfman30/physio-quota-tracker/internal/synclog"
)

type runCall struct {
	clinicID string
	pmsType  pms.Type
	trigger  synclog.Trigger
	ctxErr   error
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	errs  map[string]error
	done  chan runCall
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{errs: map[string]error{}, done: make(chan runCall, 16)}
}

func (f *fakeRunner) RunTriggered(ctx context.Context, clinicID string, pmsType pms.Type, trigger synclog.Trigger) (*reconcile.Result, error) {
	call := runCall{clinicID: clinicID, pmsType: pmsType, trigger: trigger, ctxErr: ctx.Err()}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.errs[clinicID]
	f.mu.Unlock()
	defer func() { f.done <- call }()

	res := &reconcile.Result{
		SyncID:   "sync-" + clinicID,
		ClinicID: clinicID,
		PMSType:  pmsType,
		Trigger:  trigger,
		Issues:   []string{},
	}
	if err != nil {
		if err == reconcile.ErrSyncInProgress {
			return nil, err
		}
		res.Error = err.Error()
		return res, err
	}
	res.Success = true
	res.CasesCreated = 3
	return res, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	reqs []Request
	err  error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, req Request) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Request{}, r.err
	}
	req.ID = "req-1"
	r.reqs = append(r.reqs, req)
	return req, nil
}

func (r *recordingEnqueuer) requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.reqs...)
}

// deleteRecorder wraps a queue and records deleted receipt handles.
type deleteRecorder struct {
	QueueClient
	mu      sync.Mutex
	deleted []string
}

func (d *deleteRecorder) Delete(ctx context.Context, receiptHandle string) error {
	d.mu.Lock()
	d.deleted = append(d.deleted, receiptHandle)
	d.mu.Unlock()
	return d.QueueClient.Delete(ctx, receiptHandle)
}

func (d *deleteRecorder) deletedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deleted)
}

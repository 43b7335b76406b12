package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/blockgate/engine/execution"
	"github.com/mohae/deepcopy"
)

// InMemoryRepo mirrors the once-only semantics of the SQL execution log.
type InMemoryRepo struct {
	mu      sync.Mutex
	records map[string]*execution.Record

	FailGet    error
	FailInsert error
	FailFinish error
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{records: map[string]*execution.Record{}}
}

func (r *InMemoryRepo) Get(_ context.Context, executionID string) (*execution.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailGet != nil {
		return nil, r.FailGet
	}
	rec, ok := r.records[executionID]
	if !ok {
		return nil, execution.ErrExecutionNotFound
	}
	return copyRecord(rec), nil
}

func (r *InMemoryRepo) Insert(_ context.Context, rec *execution.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		return false, r.FailInsert
	}
	if _, exists := r.records[rec.ExecutionID]; exists {
		return false, nil
	}
	r.records[rec.ExecutionID] = copyRecord(rec)
	return true, nil
}

func (r *InMemoryRepo) UpdateProgress(_ context.Context, executionID string, progress *execution.AsyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[executionID]; ok && rec.EndedAt == nil {
		p := *progress
		rec.Payload.Progress = &p
	}
	return nil
}

func (r *InMemoryRepo) Finish(_ context.Context, executionID string, t *execution.Terminal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailFinish != nil {
		return false, r.FailFinish
	}
	rec, ok := r.records[executionID]
	if !ok || rec.EndedAt != nil {
		return false, nil
	}
	apply(rec, t, t.DurationMs)
	return true, nil
}

func (r *InMemoryRepo) FailStale(_ context.Context, cutoff time.Time, t *execution.Terminal) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if rec.EndedAt != nil || !rec.StartedAt.Before(cutoff) {
			continue
		}
		apply(rec, t, t.EndedAt.Sub(rec.StartedAt).Milliseconds())
		n++
	}
	return n, nil
}

// Put stores rec as is, replacing any record with the same execution id.
func (r *InMemoryRepo) Put(rec *execution.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ExecutionID] = copyRecord(rec)
}

func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func apply(rec *execution.Record, t *execution.Terminal, durationMs int64) {
	ended := t.EndedAt
	rec.EndedAt = &ended
	rec.Level = t.Level
	rec.TotalDurationMs = &durationMs
	rec.APICalls = t.APICalls
	rec.CreditsConsumed = t.Credits
	if t.Response != nil {
		resp := *t.Response
		rec.Payload.Response = &resp
	}
}

func copyRecord(rec *execution.Record) *execution.Record {
	cp := *rec
	cp.Payload.Request.Params, _ = deepcopy.Copy(rec.Payload.Request.Params).(map[string]any)
	return &cp
}

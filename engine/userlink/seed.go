package userlink

import (
	"context"
	"sync"
	"time"

	"github.com/compozy/blockgate/pkg/logger"
)

// Seeder writes starter content into freshly created workflows. Seeding runs
// detached from the request; callers must not depend on it having happened.
type Seeder struct {
	repo    Repository
	timeout time.Duration
	sem     chan struct{}
	pending sync.WaitGroup
}

func NewSeeder(repo Repository, timeout time.Duration, workers int) *Seeder {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Seeder{repo: repo, timeout: timeout, sem: make(chan struct{}, workers)}
}

// StarterState is the initial graph of a provisioned workflow: a single start node.
func StarterState(wf *Workflow) map[string]any {
	return map[string]any{
		"version": 1,
		"blocks": map[string]any{
			"start": map[string]any{
				"id":       "start",
				"type":     "starter",
				"name":     "Start",
				"position": map[string]any{"x": 100, "y": 100},
				"enabled":  true,
			},
		},
		"edges":      []any{},
		"workflowId": wf.ID.String(),
	}
}

func (s *Seeder) Seed(ctx context.Context, wf *Workflow) {
	log := logger.FromContext(ctx).With("workflow_id", wf.ID)
	s.pending.Add(1)
	go func() {
		s.sem <- struct{}{}
		defer func() {
			<-s.sem
			s.pending.Done()
		}()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.repo.SeedWorkflowState(bgCtx, wf.ID, StarterState(wf)); err != nil {
			log.Warn("Failed to seed starter workflow", "error", err)
			return
		}
		log.Debug("Seeded starter workflow")
	}()
}

// Wait blocks until in-flight seeding finishes.
func (s *Seeder) Wait() {
	s.pending.Wait()
}

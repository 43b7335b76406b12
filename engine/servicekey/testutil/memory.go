package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/servicekey"
)

const Prefix = "bgk_"

// InMemoryRepo stores service keys by hash.
type InMemoryRepo struct {
	mu   sync.Mutex
	keys map[string]*servicekey.Key
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{keys: map[string]*servicekey.Key{}}
}

func (r *InMemoryRepo) GetByHash(_ context.Context, serviceName, keyHash string) (*servicekey.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[keyHash]
	if !ok || key.ServiceName != serviceName {
		return nil, servicekey.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

func (r *InMemoryRepo) TouchLastUsed(_ context.Context, id core.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.ID == id {
			k.LastUsedAt = &at
		}
	}
	return nil
}

func (r *InMemoryRepo) Create(_ context.Context, key *servicekey.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *key
	r.keys[key.KeyHash] = &cp
	return nil
}

// Issue creates an active key for service and returns the raw secret.
func (r *InMemoryRepo) Issue(t *testing.T, service string, perMinute int64, scopes ...servicekey.Scope) string {
	t.Helper()
	_, raw, err := servicekey.NewCreateKey(r, &servicekey.CreateInput{
		ServiceName: service,
		Prefix:      Prefix,
		Scopes:      scopes,
		PerMinute:   perMinute,
	}).Execute(t.Context())
	if err != nil {
		t.Fatalf("issuing service key: %v", err)
	}
	return raw
}

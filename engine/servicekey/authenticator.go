package servicekey

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/pkg/logger"
)

// Repository is the persistence contract for service keys.
type Repository interface {
	GetByHash(ctx context.Context, serviceName, keyHash string) (*Key, error)
	TouchLastUsed(ctx context.Context, id core.ID, at time.Time) error
	Create(ctx context.Context, key *Key) error
}

const lastUsedTimeout = 2 * time.Second

// Authenticator validates presented service keys for one caller system.
type Authenticator struct {
	repo        Repository
	serviceName string
	prefix      string
	now         func() time.Time
	touchSem    chan struct{}
	pending     sync.WaitGroup
}

func NewAuthenticator(repo Repository, serviceName, prefix string, workers int) *Authenticator {
	if workers < 1 {
		workers = 1
	}
	return &Authenticator{
		repo:        repo,
		serviceName: serviceName,
		prefix:      prefix,
		now:         func() time.Time { return time.Now().UTC() },
		touchSem:    make(chan struct{}, workers),
	}
}

// Authenticate resolves the presented key. Checks run in this order: format,
// hash lookup, active flag, expiry, then scopes, so an inactive key is never
// reported as lacking scope.
func (a *Authenticator) Authenticate(ctx context.Context, presented string, required ...Scope) (*Principal, error) {
	log := logger.FromContext(ctx)
	if presented == "" {
		return nil, authFailure(FailureMissingKey)
	}
	if !WellFormed(presented, a.prefix) {
		return nil, authFailure(FailureInvalidKey)
	}
	key, err := a.repo.GetByHash(ctx, a.serviceName, HashKey(presented))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, authFailure(FailureInvalidKey)
		}
		log.Error("Failed to look up service key", "error", err)
		return nil, &AuthError{Kind: FailureInternal, Err: err}
	}
	if !key.IsActive {
		return nil, authFailure(FailureInactiveKey)
	}
	now := a.now()
	if key.IsExpired(now) {
		return nil, authFailure(FailureExpiredKey)
	}
	if missing := key.MissingScopes(required); len(missing) > 0 {
		return nil, &AuthError{Kind: FailureInsufficientScope, Missing: missing}
	}
	a.touchLastUsed(ctx, key.ID, now)
	return principalFromKey(key), nil
}

// touchLastUsed records last use on a detached goroutine. Callers must not
// rely on it having finished; failures are only logged.
func (a *Authenticator) touchLastUsed(ctx context.Context, id core.ID, at time.Time) {
	select {
	case a.touchSem <- struct{}{}:
		a.pending.Add(1)
		go func() {
			defer func() {
				<-a.touchSem
				a.pending.Done()
			}()
			bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastUsedTimeout)
			defer cancel()
			if err := a.repo.TouchLastUsed(bgCtx, id, at); err != nil {
				logger.FromContext(bgCtx).Warn("Failed to update service key last used", "error", err, "key_id", id)
			}
		}()
	default:
		logger.FromContext(ctx).Debug("Skipping service key last used update due to high load", "key_id", id)
	}
}

// Wait blocks until in-flight last-used updates finish; used on shutdown.
func (a *Authenticator) Wait() {
	a.pending.Wait()
}

package admissiontest

import (
	"testing"

	"github.com/compozy/blockgate/engine/admission"
	"github.com/compozy/blockgate/engine/ratelimit"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/engine/servicekey/testutil"
	"github.com/compozy/blockgate/pkg/config"
)

// NewForTest builds an admission chain over an in-memory key store with an
// in-memory limiter. User quotas are disabled.
func NewForTest(t *testing.T, keys *testutil.InMemoryRepo) *admission.Admission {
	t.Helper()
	auth := servicekey.NewAuthenticator(keys, "canvas", testutil.Prefix, 2)
	t.Cleanup(auth.Wait)
	store, err := ratelimit.NewStore(nil, "test:", 1)
	if err != nil {
		t.Fatalf("creating limiter store: %v", err)
	}
	checker, err := ratelimit.NewChecker(store, &config.RateLimitConfig{})
	if err != nil {
		t.Fatalf("creating checker: %v", err)
	}
	return admission.New(auth, reqctx.NewBuilder(nil), checker)
}

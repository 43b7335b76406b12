package execution

import (
	"context"
	"errors"
	"time"

	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/sethvargo/go-retry"
)

const retryBackoff = 100 * time.Millisecond

// unsuccessful wraps a result that reported Success false so it can flow
// through the retry loop.
type unsuccessful struct {
	result *block.Result
}

func (u *unsuccessful) Error() string {
	if u.result.Error != "" {
		return u.result.Error
	}
	return "block reported failure"
}

// Runner invokes one action. With retry enabled a failed attempt is tried
// exactly once more; deadline and cancellation errors are never retried.
type Runner struct {
	backoff time.Duration
}

func NewRunner() *Runner {
	return &Runner{backoff: retryBackoff}
}

// Attempt is the outcome of Run. Result is the last result produced, which
// may be nil when the action returned an error.
type Attempt struct {
	Result   *block.Result
	Err      error
	Attempts int
}

func (a *Attempt) Succeeded() bool {
	return a.Err == nil && a.Result != nil && a.Result.Success
}

func (r *Runner) Run(
	ctx context.Context,
	action block.Action,
	params map[string]any,
	ec *block.ExecContext,
	retryOnFailure bool,
) *Attempt {
	log := logger.FromContext(ctx).With("action", action.ID(), "execution_id", ec.ExecutionID)
	var maxRetries uint64
	if retryOnFailure {
		maxRetries = 1
	}
	out := &Attempt{}
	backoff := retry.WithMaxRetries(maxRetries, retry.NewConstant(r.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out.Attempts++
		res, err := invoke(ctx, action, params, ec)
		out.Result = res
		switch {
		case err != nil:
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Debug("Action attempt failed", "attempt", out.Attempts, "error", err)
			return retry.RetryableError(err)
		case res == nil:
			return retry.RetryableError(errors.New("action returned no result"))
		case !res.Success:
			log.Debug("Action reported failure", "attempt", out.Attempts, "error", res.Error)
			return retry.RetryableError(&unsuccessful{result: res})
		}
		return nil
	})
	var failed *unsuccessful
	if errors.As(err, &failed) {
		err = nil
	}
	out.Err = err
	return out
}

// invoke converts panics in actions into errors.
func invoke(
	ctx context.Context,
	action block.Action,
	params map[string]any,
	ec *block.ExecContext,
) (res *block.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, errors.New("action panicked")
			logger.FromContext(ctx).Error("Action panicked", "action", action.ID(), "panic", r)
		}
	}()
	return action.Execute(ctx, params, ec)
}

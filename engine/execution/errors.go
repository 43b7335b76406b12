package execution

import (
	"context"
	"errors"

	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/infra/server/router"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrTimeout           = errors.New("execution timed out")
	// ErrMissingCredentials is what actions wrap when a downstream
	// credential is absent.
	ErrMissingCredentials = block.ErrMissingCredentials
)

// Failure is a classified execution error. It is stored with failed records
// and replayed verbatim.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *Failure) Error() string {
	return f.Code + ": " + f.Message
}

func (f *Failure) APIError() *router.APIError {
	return router.NewAPIError(f.Code, f.Message).WithDetails(f.Details)
}

func fail(code, message string) *Failure {
	return &Failure{Code: code, Message: message}
}

// classify maps an action failure onto a response code. Deadline errors are
// timeouts; the structured credential error wins over the text heuristic.
func classify(err error, resultMessage string) *Failure {
	message := resultMessage
	if err != nil {
		message = err.Error()
	}
	message = core.RedactString(message)
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fail(router.ErrTimeoutCode, "Execution exceeded its time limit")
	case errors.Is(err, ErrMissingCredentials):
		return fail(router.ErrMissingCredentialsCode, message)
	case router.IsCredentialFailure(message):
		return fail(router.ErrMissingCredentialsCode, message)
	case message == "":
		return fail(router.ErrExecutionFailedCode, "Block execution failed")
	default:
		return fail(router.ErrExecutionFailedCode, message)
	}
}

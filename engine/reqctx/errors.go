package reqctx

import (
	"errors"
	"fmt"

	"github.com/compozy/blockgate/engine/infra/server/router"
)

// ValidationError lists malformed or missing caller headers by header name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid caller headers: %v", e.Fields)
}

// ForbiddenIPError reports a client address outside the allow-list.
type ForbiddenIPError struct {
	IP string
}

func (e *ForbiddenIPError) Error() string {
	if e.IP == "" {
		return "client address unknown"
	}
	return fmt.Sprintf("client address %s not allowed", e.IP)
}

func ToAPIError(err error) *router.APIError {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return router.InvalidParams("Invalid request headers", verr.Fields)
	}
	var ipErr *ForbiddenIPError
	if errors.As(err, &ipErr) {
		return router.NewAPIError(router.ErrForbiddenCode, "IP address not allowed").Wrap(err)
	}
	return router.Internal(err)
}

package servicekey

import (
	"context"
	"errors"
	"strings"

	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

const HeaderServiceKey = "X-Service-Key"

type contextKey string

const principalCtxKey contextKey = "servicekey_principal"

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// PresentedKey reads the key from X-Service-Key, then a Bearer Authorization header.
func PresentedKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(HeaderServiceKey)); key != "" {
		return key
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Middleware authenticates the caller system and requires every given scope.
func Middleware(auth *Authenticator, required ...Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.Authenticate(c.Request.Context(), PresentedKey(c), required...)
		if err != nil {
			router.RespondWithError(c, ToAPIError(err))
			return
		}
		c.Request = c.Request.WithContext(ContextWithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// ToAPIError maps authentication failures onto the error envelope.
func ToAPIError(err error) *router.APIError {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return router.Internal(err)
	}
	switch authErr.Kind {
	case FailureMissingKey:
		return router.NewAPIError(router.ErrUnauthorizedCode, "Missing service key")
	case FailureInvalidKey:
		return router.NewAPIError(router.ErrUnauthorizedCode, "Invalid service key")
	case FailureExpiredKey:
		return router.NewAPIError(router.ErrUnauthorizedCode, "Service key expired")
	case FailureInactiveKey:
		return router.NewAPIError(router.ErrUnauthorizedCode, "Service key is inactive")
	case FailureInsufficientScope:
		missing := make([]string, len(authErr.Missing))
		for i, s := range authErr.Missing {
			missing[i] = string(s)
		}
		return router.NewAPIError(router.ErrInsufficientScopeCode, "Service key lacks required scope").
			WithDetails(map[string]any{"missingScopes": missing})
	default:
		return router.Internal(err)
	}
}

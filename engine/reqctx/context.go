package reqctx

import (
	"context"
	"slices"
	"strings"

	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/google/uuid"
)

// GatewayContext is the validated view of one admitted request.
type GatewayContext struct {
	Service             *servicekey.Principal
	ExternalUserID      string
	ExternalWorkspaceID string
	RequestID           string
	IdempotencyKey      string
	ClientIP            string
	UserAgent           string
}

// HasUser reports whether the caller acted on behalf of an end user.
func (g *GatewayContext) HasUser() bool {
	return g.ExternalUserID != ""
}

// Headers carries the raw caller-supplied values before validation.
type Headers struct {
	ExternalUserID      string
	ExternalWorkspaceID string
	RequestID           string
	IdempotencyKey      string
	ClientIP            string
	UserAgent           string
}

// Options selects the per-endpoint enforcement mode.
type Options struct {
	RequireUser      bool
	RequireWorkspace bool
}

// Builder validates headers against the configured IP allow-list.
type Builder struct {
	allowlist []string
}

func NewBuilder(allowlist []string) *Builder {
	cleaned := make([]string, 0, len(allowlist))
	for _, ip := range allowlist {
		if ip = strings.TrimSpace(ip); ip != "" {
			cleaned = append(cleaned, ip)
		}
	}
	return &Builder{allowlist: cleaned}
}

// Build combines the authenticated principal with caller headers. Identifier
// headers are validated whenever present; Options only adds presence checks.
func (b *Builder) Build(principal *servicekey.Principal, h Headers, opts Options) (*GatewayContext, error) {
	if !b.ipAllowed(h.ClientIP) {
		return nil, &ForbiddenIPError{IP: h.ClientIP}
	}
	fields := map[string]string{}
	userID := strings.TrimSpace(h.ExternalUserID)
	workspaceID := strings.TrimSpace(h.ExternalWorkspaceID)
	userID = checkUUID(fields, HeaderUserID, userID, opts.RequireUser)
	workspaceID = checkUUID(fields, HeaderWorkspaceID, workspaceID, opts.RequireWorkspace)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return &GatewayContext{
		Service:             principal,
		ExternalUserID:      userID,
		ExternalWorkspaceID: workspaceID,
		RequestID:           strings.TrimSpace(h.RequestID),
		IdempotencyKey:      strings.TrimSpace(h.IdempotencyKey),
		ClientIP:            h.ClientIP,
		UserAgent:           h.UserAgent,
	}, nil
}

// ipAllowed passes everything when no allow-list is configured. Otherwise the
// address must match an entry verbatim, and an unknown address never matches.
func (b *Builder) ipAllowed(ip string) bool {
	if len(b.allowlist) == 0 {
		return true
	}
	if ip == "" {
		return false
	}
	return slices.Contains(b.allowlist, ip)
}

// CanonicalID returns the lowercase hyphenated form of an external UUID.
func CanonicalID(value string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func checkUUID(fields map[string]string, header, value string, required bool) string {
	if value == "" {
		if required {
			fields[header] = "is required"
		}
		return ""
	}
	id, ok := CanonicalID(value)
	if !ok {
		fields[header] = "must be a valid UUID"
	}
	return id
}

type contextKey string

const gatewayCtxKey contextKey = "gateway_context"

func WithGatewayContext(ctx context.Context, g *GatewayContext) context.Context {
	return context.WithValue(ctx, gatewayCtxKey, g)
}

func FromContext(ctx context.Context) (*GatewayContext, bool) {
	g, ok := ctx.Value(gatewayCtxKey).(*GatewayContext)
	return g, ok && g != nil
}

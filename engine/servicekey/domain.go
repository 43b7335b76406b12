package servicekey

import (
	"slices"
	"time"

	"github.com/compozy/blockgate/engine/core"
)

// Scope is a capability granted to a service key.
type Scope string

const (
	ScopeBlocksList     Scope = "blocks:list"
	ScopeBlocksExecute  Scope = "blocks:execute"
	ScopeUsersProvision Scope = "users:provision"
	ScopeUsersRead      Scope = "users:read"
)

// KnownScopes lists every scope accepted at key issuance.
var KnownScopes = []Scope{ScopeBlocksList, ScopeBlocksExecute, ScopeUsersProvision, ScopeUsersRead}

func (s Scope) IsValid() bool {
	return slices.Contains(KnownScopes, s)
}

// Key is a stored service credential. Only the SHA-256 hash of the secret is kept.
type Key struct {
	ID                 core.ID        `json:"id"                     db:"id"`
	ServiceName        string         `json:"service_name"           db:"service_name"`
	KeyHash            string         `json:"-"                      db:"key_hash"`
	KeyPrefix          string         `json:"key_prefix"             db:"key_prefix"`
	Scopes             []string       `json:"scopes"                 db:"scopes"`
	RateLimitPerMinute int64          `json:"rate_limit_per_minute"  db:"rate_limit_per_minute"`
	RateLimitPerDay    int64          `json:"rate_limit_per_day"     db:"rate_limit_per_day"`
	Metadata           map[string]any `json:"metadata,omitempty"     db:"metadata"`
	IsActive           bool           `json:"is_active"              db:"is_active"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"   db:"expires_at"`
	LastUsedAt         *time.Time     `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt          time.Time      `json:"created_at"             db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"             db:"updated_at"`
}

func (k *Key) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// MissingScopes returns the required scopes absent from the key, in request order.
func (k *Key) MissingScopes(required []Scope) []Scope {
	var missing []Scope
	for _, s := range required {
		if !slices.Contains(k.Scopes, string(s)) {
			missing = append(missing, s)
		}
	}
	return missing
}

// Principal is the authenticated view of a service key handed to later stages.
type Principal struct {
	ServiceName        string
	KeyID              core.ID
	KeyPrefix          string
	Scopes             []string
	RateLimitPerMinute int64
	RateLimitPerDay    int64
	Metadata           map[string]any
}

func principalFromKey(k *Key) *Principal {
	return &Principal{
		ServiceName:        k.ServiceName,
		KeyID:              k.ID,
		KeyPrefix:          k.KeyPrefix,
		Scopes:             slices.Clone(k.Scopes),
		RateLimitPerMinute: k.RateLimitPerMinute,
		RateLimitPerDay:    k.RateLimitPerDay,
		Metadata:           k.Metadata,
	}
}

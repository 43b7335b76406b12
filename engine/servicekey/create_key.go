package servicekey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/blockgate/engine/core"
)

// CreateInput describes a key to issue.
type CreateInput struct {
	ServiceName string
	Prefix      string
	Scopes      []Scope
	PerMinute   int64
	PerDay      int64
	ExpiresIn   time.Duration
	Metadata    map[string]any
}

// CreateKey issues a new service key.
type CreateKey struct {
	repo  Repository
	input *CreateInput
}

func NewCreateKey(repo Repository, input *CreateInput) *CreateKey {
	return &CreateKey{repo: repo, input: input}
}

// Execute stores the hashed key and returns the raw secret alongside the record.
func (uc *CreateKey) Execute(ctx context.Context) (*Key, string, error) {
	in := uc.input
	if strings.TrimSpace(in.ServiceName) == "" {
		return nil, "", errors.New("service name is required")
	}
	if len(in.Scopes) == 0 {
		return nil, "", errors.New("at least one scope is required")
	}
	scopes := make([]string, 0, len(in.Scopes))
	for _, s := range in.Scopes {
		if !s.IsValid() {
			return nil, "", fmt.Errorf("unknown scope %q", s)
		}
		scopes = append(scopes, string(s))
	}
	if in.PerMinute < 0 || in.PerDay < 0 {
		return nil, "", errors.New("rate limits cannot be negative")
	}
	generated, err := Generate(in.Prefix)
	if err != nil {
		return nil, "", err
	}
	id, err := core.NewID()
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	key := &Key{
		ID:                 id,
		ServiceName:        in.ServiceName,
		KeyHash:            generated.Hash,
		KeyPrefix:          generated.DisplayPrefix,
		Scopes:             scopes,
		RateLimitPerMinute: in.PerMinute,
		RateLimitPerDay:    in.PerDay,
		Metadata:           in.Metadata,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.ExpiresIn > 0 {
		expires := now.Add(in.ExpiresIn)
		key.ExpiresAt = &expires
	}
	if err := uc.repo.Create(ctx, key); err != nil {
		return nil, "", fmt.Errorf("storing service key: %w", err)
	}
	return key, generated.Raw, nil
}

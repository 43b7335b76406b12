package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var serviceKeyColumns = []string{
	"id",
	"service_name",
	"key_hash",
	"key_prefix",
	"scopes",
	"rate_limit_per_minute",
	"rate_limit_per_day",
	"metadata",
	"is_active",
	"expires_at",
	"last_used_at",
	"created_at",
	"updated_at",
}

// ServiceKeyRepo implements servicekey.Repository.
type ServiceKeyRepo struct {
	db DB
}

func NewServiceKeyRepo(db DB) *ServiceKeyRepo {
	return &ServiceKeyRepo{db: db}
}

func (r *ServiceKeyRepo) GetByHash(ctx context.Context, serviceName, keyHash string) (*servicekey.Key, error) {
	query, args, err := squirrel.Select(serviceKeyColumns...).
		From("service_keys").
		Where(squirrel.Eq{"key_hash": keyHash, "service_name": serviceName}).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building service key query: %w", err)
	}
	var key servicekey.Key
	if err := pgxscan.Get(ctx, r.db, &key, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicekey.ErrKeyNotFound
		}
		return nil, fmt.Errorf("scanning service key: %w", err)
	}
	return &key, nil
}

func (r *ServiceKeyRepo) TouchLastUsed(ctx context.Context, id core.ID, at time.Time) error {
	query, args, err := squirrel.Update("service_keys").
		Set("last_used_at", at).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building last used update: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("updating last used: %w", err)
	}
	return nil
}

func (r *ServiceKeyRepo) Create(ctx context.Context, key *servicekey.Key) error {
	metadata := key.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	query, args, err := squirrel.Insert("service_keys").
		Columns(
			"id", "service_name", "key_hash", "key_prefix", "scopes",
			"rate_limit_per_minute", "rate_limit_per_day", "metadata", "is_active", "expires_at",
		).
		Values(
			key.ID, key.ServiceName, key.KeyHash, key.KeyPrefix, key.Scopes,
			key.RateLimitPerMinute, key.RateLimitPerDay, metadata, key.IsActive, key.ExpiresAt,
		).
		Suffix("RETURNING created_at, updated_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building service key insert: %w", err)
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&key.CreatedAt, &key.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("service key hash collision: %w", err)
		}
		return fmt.Errorf("inserting service key: %w", err)
	}
	return nil
}

package userlink

import (
	"time"

	"github.com/compozy/blockgate/engine/core"
	"github.com/shopspring/decimal"
)

// Link maps an external user id, scoped by provider, to an internal user.
type Link struct {
	ID         core.ID        `json:"id"                 db:"id"`
	Provider   string         `json:"provider"           db:"provider"`
	ExternalID string         `json:"external_id"        db:"external_id"`
	UserID     core.ID        `json:"user_id"            db:"user_id"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time      `json:"created_at"         db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"         db:"updated_at"`
}

type User struct {
	ID            core.ID   `json:"id"             db:"id"`
	Email         string    `json:"email"          db:"email"`
	Name          string    `json:"name"           db:"name"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}

type Workspace struct {
	ID        core.ID   `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	Slug      string    `json:"slug"       db:"slug"`
	OwnerID   core.ID   `json:"owner_id"   db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PermissionAdmin is the grant given to the owner of a provisioned workspace.
const PermissionAdmin = "admin"

type Permission struct {
	ID          core.ID   `db:"id"`
	WorkspaceID core.ID   `db:"workspace_id"`
	UserID      core.ID   `db:"user_id"`
	Permission  string    `db:"permission"`
	CreatedAt   time.Time `db:"created_at"`
}

type Workflow struct {
	ID          core.ID   `json:"id"           db:"id"`
	WorkspaceID core.ID   `json:"workspace_id" db:"workspace_id"`
	UserID      core.ID   `json:"user_id"      db:"user_id"`
	Name        string    `json:"name"         db:"name"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}

// Account is everything created for a brand new user. The repository
// persists it as one unit.
type Account struct {
	User       *User
	Credits    decimal.Decimal
	Link       *Link
	Workspace  *Workspace
	Permission *Permission
	Workflow   *Workflow
}

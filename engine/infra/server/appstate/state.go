package appstate

import (
	"context"
	"fmt"

	"github.com/compozy/blockgate/engine/admission"
	"github.com/compozy/blockgate/engine/block"
	"github.com/compozy/blockgate/engine/execution"
	"github.com/compozy/blockgate/engine/infra/cache"
	"github.com/compozy/blockgate/engine/infra/postgres"
	"github.com/compozy/blockgate/engine/userlink"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/gin-gonic/gin"
)

type contextKey string

const stateKey contextKey = "app_state"

// Infra holds the shared connections. Redis is nil when not configured.
type Infra struct {
	Store *postgres.Store
	Redis *cache.Redis
}

// State is everything route handlers need, built once at startup.
type State struct {
	Infra
	Config     *config.Config
	Admission  *admission.Admission
	Catalog    *block.Catalog
	Users      userlink.Repository
	Seeder     *userlink.Seeder
	Settings   userlink.Settings
	Executions *execution.Service
}

func NewState(infra Infra, cfg *config.Config) (*State, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if infra.Store == nil {
		return nil, fmt.Errorf("postgres store is required")
	}
	return &State{Infra: infra, Config: cfg}, nil
}

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey, state)
}

func GetState(ctx context.Context) (*State, error) {
	state, ok := ctx.Value(stateKey).(*State)
	if !ok || state == nil {
		return nil, fmt.Errorf("app state not found in context")
	}
	return state, nil
}

// StateMiddleware attaches the state to every request context.
func StateMiddleware(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithState(c.Request.Context(), state))
		c.Next()
	}
}

package server

import (
	"context"
	"fmt"

	blockrouter "github.com/compozy/blockgate/engine/block/router"
	execrouter "github.com/compozy/blockgate/engine/execution/router"
	"github.com/compozy/blockgate/engine/infra/server/appstate"
	"github.com/compozy/blockgate/engine/infra/server/middleware/size"
	"github.com/compozy/blockgate/engine/infra/server/router"
	"github.com/compozy/blockgate/engine/infra/server/routes"
	linkrouter "github.com/compozy/blockgate/engine/userlink/router"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes mounts the gateway API under routes.Gateway().
func RegisterRoutes(ctx context.Context, r *gin.Engine, state *appstate.State) error {
	blocks, err := blockrouter.NewHandler(state.Catalog)
	if err != nil {
		return fmt.Errorf("failed to create block handler: %w", err)
	}
	api := r.Group(routes.Gateway(), size.BodySizeLimiter(maxBodyBytes))
	blockrouter.Register(api, state.Admission, blocks)
	linkrouter.Register(api, state.Admission, linkrouter.NewHandler(
		state.Users,
		state.Seeder,
		state.Settings,
		state.Config.Gateway.CallerService,
	))
	execrouter.Register(api, state.Admission, execrouter.NewHandler(state.Executions, &state.Config.Execution))
	r.NoRoute(func(c *gin.Context) {
		router.RespondWithError(c, router.NewAPIError(router.ErrNotFoundCode, "Route not found"))
	})
	logger.FromContext(ctx).Info("Completed route registration",
		"base", routes.Gateway(),
		"total_blocks", state.Catalog.Len(),
	)
	return nil
}

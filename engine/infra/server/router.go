package server

import (
	"context"

	"github.com/compozy/blockgate/engine/infra/server/appstate"
	"github.com/compozy/blockgate/engine/infra/server/routes"
	"github.com/compozy/blockgate/engine/reqctx"
	"github.com/gin-gonic/gin"
)

func (s *Server) buildRouter(ctx context.Context, state *appstate.State) error {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqctx.RequestID())
	if s.monitoring != nil {
		r.Use(s.monitoring.GinMiddleware(ctx))
	}
	r.Use(LoggerMiddleware())
	if s.cfg.Server.CORSEnabled {
		r.Use(CORSMiddleware())
	}
	r.Use(appstate.StateMiddleware(state))
	r.GET(routes.Health(), CreateHealthHandler(state))
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		r.GET(s.monitoring.Path(), gin.WrapH(s.monitoring.ExporterHandler()))
	}
	if err := RegisterRoutes(ctx, r, state); err != nil {
		return err
	}
	s.router = r
	return nil
}

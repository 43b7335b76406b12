package cli

import (
	"os/signal"
	"syscall"

	"github.com/compozy/blockgate/engine/infra/server"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cfg := config.FromContext(ctx)
			if cfg.Runtime.Environment == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			logger.FromContext(ctx).Info("Starting blockgate",
				"environment", cfg.Runtime.Environment,
				"caller_service", cfg.Gateway.CallerService,
			)
			return server.NewServer(ctx).Run(ctx)
		},
	}
	cmd.Flags().String("host", "", "Address to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	cmd.Flags().Bool("auto-migrate", false, "Apply database migrations before serving")
	cmd.Flags().String("db-url", "", "Postgres connection string")
	cmd.Flags().String("redis-url", "", "Redis connection URL")
	return cmd
}

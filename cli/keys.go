package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/compozy/blockgate/engine/infra/postgres"
	"github.com/compozy/blockgate/engine/servicekey"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage service keys",
	}
	cmd.AddCommand(keysCreateCmd())
	return cmd
}

type createKeyOptions struct {
	service   string
	scopes    []string
	perMinute int64
	perDay    int64
	expiresIn string
}

func keysCreateCmd() *cobra.Command {
	opts := &createKeyOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a service key; the raw key is printed once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			store, err := postgres.NewStore(ctx, postgres.ConfigFromApp(&cfg.Database))
			if err != nil {
				return err
			}
			defer store.Close(ctx)
			return createKey(ctx, postgres.NewServiceKeyRepo(store.Pool()), cfg.Gateway, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.service, "service", "", "Caller service name (defaults to gateway.caller_service)")
	flags.StringSliceVar(&opts.scopes, "scopes", []string{
		string(servicekey.ScopeBlocksList),
		string(servicekey.ScopeBlocksExecute),
	}, "Comma separated scopes")
	flags.Int64Var(&opts.perMinute, "per-minute", 0, "Per-minute quota; 0 uses the server default")
	flags.Int64Var(&opts.perDay, "per-day", 0, "Per-day quota; 0 uses the server default")
	flags.StringVar(&opts.expiresIn, "expires-in", "", "Lifetime such as 90d or 12h; empty never expires")
	return cmd
}

func createKey(
	ctx context.Context,
	repo servicekey.Repository,
	gw config.GatewayConfig,
	opts *createKeyOptions,
	out io.Writer,
) error {
	var expiresIn time.Duration
	if opts.expiresIn != "" {
		d, err := str2duration.ParseDuration(opts.expiresIn)
		if err != nil {
			return fmt.Errorf("invalid --expires-in %q: %w", opts.expiresIn, err)
		}
		expiresIn = d
	}
	service := opts.service
	if service == "" {
		service = gw.CallerService
	}
	scopes := make([]servicekey.Scope, 0, len(opts.scopes))
	for _, s := range opts.scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, servicekey.Scope(s))
		}
	}
	key, raw, err := servicekey.NewCreateKey(repo, &servicekey.CreateInput{
		ServiceName: service,
		Prefix:      gw.KeyPrefix,
		Scopes:      scopes,
		PerMinute:   opts.perMinute,
		PerDay:      opts.perDay,
		ExpiresIn:   expiresIn,
	}).Execute(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "id:      %s\nservice: %s\nscopes:  %s\nkey:     %s\n\nStore the key now; it cannot be shown again.\n",
		key.ID, key.ServiceName, strings.Join(key.Scopes, ","), raw)
	return err
}

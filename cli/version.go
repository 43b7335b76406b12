package cli

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/blockgate/pkg/version"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

func VersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			if asJSON {
				raw, err := json.Marshal(info)
				if err != nil {
					return err
				}
				_, err = out.Write(pretty.Pretty(raw))
				return err
			}
			_, err := fmt.Fprintf(out, "blockgate %s (commit %s, built %s, %s)\n",
				info.Version, info.CommitHash, info.BuildDate, info.GoVersion)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

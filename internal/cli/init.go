package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize capture configuration and local state",
		Long:  "Create the configuration directory with a default config.yaml, then create\nthe local state database in the data directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			out := stdout(cmd)
			fmt.Fprintf(out, "Config: %s\n", paths.ConfigFile(a.configDir))
			fmt.Fprintf(out, "State:  %s\n", st.Path())
			fmt.Fprintln(out, "Capture initialized successfully")
			return nil
		},
	}
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/export"
	"github.com/mesh-intelligence/capture/pkg/types"
)

func printResult(cmd *cobra.Command, a *app, res export.Result) error {
	if a.jsonOut() {
		return printJSON(stdout(cmd), res)
	}
	t := newTable(stdout(cmd), "TABLE", "ROWS")
	for _, tr := range res.Tables {
		t.row(tr.Name, fmt.Sprint(tr.Rows))
	}
	return t.flush()
}

func newDumpCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "dump <project>",
		Short: "Write a project's schemas and rows to a directory",
		Long: `Dump writes schema.json and one <table>.jsonl file of rows per table.
Files are replaced atomically. Use restore to load a dump into a project.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if dir == "" {
				dir = args[0]
			}
			res, err := export.Dump(cmd.Context(), c.api, args[0], dir, export.Options{Logger: a.log})
			if err != nil {
				return apiError("dump", err)
			}
			return printResult(cmd, a, res)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: ./<project>)")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		dir    string
		create bool
	)
	cmd := &cobra.Command{
		Use:   "restore <project>",
		Short: "Load a dump into a project",
		Long: `Restore creates the dumped tables in the project, referenced tables
first, then inserts their rows. The tables must not already exist.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]
			if dir == "" {
				return userError(errors.New("--dir is required"))
			}
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if create {
				err := c.api.CreateProject(cmd.Context(), project)
				if err != nil && !errors.Is(err, types.ErrConflict) {
					return apiError("create project", err)
				}
			}
			res, err := export.Restore(cmd.Context(), c.api, project, dir, export.Options{Logger: a.log})
			if err != nil {
				return apiError("restore", err)
			}
			return printResult(cmd, a, res)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "dump directory (required)")
	cmd.Flags().BoolVar(&create, "create", false, "create the project if it does not exist")
	return cmd
}

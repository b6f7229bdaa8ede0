package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/rows"
)

func newRowsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Insert or clear table rows",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "insert <project> <table> column=value...",
		Short: "Insert one row",
		Long: `Insert adds one row. Values are parsed by column type; an empty value
stores NULL in a nullable column.

Example:
  capture rows insert shop customers id=1 name=Grace vip=true`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, table := args[0], args[1]
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			meta, err := c.api.TableMeta(cmd.Context(), project, table)
			if err != nil {
				return apiError("get table meta", err)
			}
			row, err := rows.ParseAssignments(meta, args[2:])
			if err != nil {
				return userError(err)
			}
			if err := c.api.InsertRow(cmd.Context(), project, table, row); err != nil {
				return apiError("insert row", err)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), row)
			}
			fmt.Fprintf(stdout(cmd), "Inserted 1 row into %s\n", table)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <project> <table>",
		Short: "Delete every row of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.api.ClearTable(cmd.Context(), args[0], args[1]); err != nil {
				return apiError("clear table", err)
			}
			fmt.Fprintf(stdout(cmd), "Cleared table %s\n", args[1])
			return nil
		},
	})

	return cmd
}

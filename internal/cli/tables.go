package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/rows"
	"github.com/mesh-intelligence/capture/internal/schema"
	"github.com/mesh-intelligence/capture/pkg/types"
)

func newTablesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tables",
		Aliases: []string{"table"},
		Short:   "Manage the tables of a project",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <project>",
		Short: "List the tables of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			metas, err := c.api.ProjectMeta(cmd.Context(), args[0])
			if err != nil {
				return apiError("list tables", err)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), metas)
			}
			t := newTable(stdout(cmd), "TABLE", "COLUMNS", "PRIMARY KEY")
			for _, m := range metas {
				var pks []string
				for _, c := range m.PrimaryKeys() {
					pks = append(pks, c.Name)
				}
				t.row(m.Name, fmt.Sprint(len(m.Columns)), strings.Join(pks, ", "))
			}
			return t.flush()
		},
	})

	cmd.AddCommand(newTableCreateCmd(a))

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <project> <table>",
		Short: "Drop a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.api.RemoveTable(cmd.Context(), args[0], args[1]); err != nil {
				return apiError("delete table", err)
			}
			fmt.Fprintf(stdout(cmd), "Deleted table %s\n", args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "meta <project> <table>",
		Short: "Show a table's columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			meta, err := c.api.TableMeta(cmd.Context(), args[0], args[1])
			if err != nil {
				return apiError("get table meta", err)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), meta)
			}
			t := newTable(stdout(cmd), "COLUMN", "TYPE", "PK", "NOT NULL", "UNIQUE", "REFERENCES")
			for _, col := range meta.Columns {
				ref := ""
				if col.ForeignKey != nil {
					ref = col.ForeignKey.Table + "." + col.ForeignKey.Column
				}
				t.row(col.Name, col.Type, yesNo(col.PrimaryKey), yesNo(col.NotNull), yesNo(col.Unique), ref)
			}
			return t.flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "data <project> <table>",
		Short: "Show a table's rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, name := args[0], args[1]
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			meta, err := c.api.TableMeta(cmd.Context(), project, name)
			if err != nil {
				return apiError("get table meta", err)
			}
			raw, err := c.api.TableData(cmd.Context(), project, name)
			if err != nil {
				return apiError("get table data", err)
			}
			data := make([]types.Row, 0, len(raw))
			for _, r := range raw {
				row, err := rows.DecodeRow(meta, r)
				if err != nil {
					return sysError(err)
				}
				data = append(data, row)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), data)
			}
			cols := rows.Columns(meta, data)
			t := newTable(stdout(cmd), cols...)
			for _, row := range data {
				cells := make([]string, len(cols))
				for i, col := range cols {
					cells[i] = rows.Format(row[col])
				}
				t.row(cells...)
			}
			return t.flush()
		},
	})

	return cmd
}

func newTableCreateCmd(a *app) *cobra.Command {
	var (
		columns []string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "create <project> [table]",
		Short: "Create a table",
		Long: `Create defines a table from --column specs or a YAML/JSON schema file.

A column spec is name:type[:pk][:notnull][:unique][:fk=table[.column]].
Types: integer, real, boolean, text, timestamp. A foreign key may only
reference a table with exactly one primary-key column; that column is
used automatically.

Example:
  capture tables create shop customers --column id:integer:pk --column name:text:notnull
  capture tables create shop orders --column id:integer:pk --column customer:integer:fk=customers
  capture tables create shop --file orders.yaml`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := args[0]
			if file == "" && len(columns) == 0 {
				return userError(errors.New("at least one --column or a --file is required"))
			}

			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			known, err := c.api.ProjectMeta(cmd.Context(), project)
			if err != nil {
				return apiError("load project tables", err)
			}

			form := schema.NewForm(project, known)
			if file != "" {
				meta, err := schema.LoadFile(file)
				if err != nil {
					return userError(err)
				}
				if err := form.Fill(meta); err != nil {
					return userError(err)
				}
			}
			if len(args) == 2 {
				form.SetName(args[1])
			}
			for _, spec := range columns {
				col, err := schema.ParseColumnSpec(spec)
				if err != nil {
					return userError(err)
				}
				i := form.Len() - 1
				if last, _ := form.Column(i); last.Name != "" || last.Type != "" {
					i = form.AddColumn()
				}
				if err := form.SetColumn(i, col); err != nil {
					return userError(fmt.Errorf("column %q: %w", col.Name, err))
				}
			}

			meta := form.Meta()
			if err := form.Submit(cmd.Context(), c.api); err != nil {
				if errors.Is(err, schema.ErrFormIncomplete) {
					return userError(fmt.Errorf("%w: every table needs a name and every column a name and type", err))
				}
				shown := &displayError{msg: form.Err(), err: err}
				if exitCode(err) == exitSysError {
					return sysError(shown)
				}
				return userError(shown)
			}

			if a.jsonOut() {
				return printJSON(stdout(cmd), meta)
			}
			fmt.Fprintf(stdout(cmd), "Created table %s with %d column(s)\n", meta.Name, len(meta.Columns))
			for _, col := range meta.Columns {
				if col.ForeignKey != nil {
					fmt.Fprintf(stdout(cmd), "  %s references %s.%s\n", col.Name, col.ForeignKey.Table, col.ForeignKey.Column)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&columns, "column", "c", nil, "column spec (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON table schema")
	return cmd
}

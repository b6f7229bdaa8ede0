package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		driver      string
		dsn         string
		replace     bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Copy a project's tables and rows into a SQL database",
		Long: `Export creates every table of the project in the target database, in
foreign-key order, and copies all rows in one transaction.

Drivers: sqlite (sqlite3), postgres (postgresql, pg), mysql (mariadb).

Example:
  capture export shop --driver sqlite --dsn ./shop.db
  capture export shop --driver pg --dsn "postgres://localhost/shop?sslmode=disable" --replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := export.ParseDialect(driver); err != nil {
				return userError(err)
			}
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			db, err := export.Open(cmd.Context(), driver, dsn)
			if err != nil {
				return sysError(err)
			}
			defer db.Close()

			res, err := export.Project(cmd.Context(), c.api, args[0], db, export.Options{
				Replace:     replace,
				Concurrency: concurrency,
				Logger:      a.log,
			})
			if err != nil {
				return apiError("export", err)
			}
			return printResult(cmd, a, res)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "sqlite", "target driver")
	cmd.Flags().StringVar(&dsn, "dsn", "", "target data source name (required)")
	cmd.Flags().BoolVar(&replace, "replace", false, "drop existing tables of the same names first")
	cmd.Flags().IntVar(&concurrency, "concurrency", export.DefaultFetchConcurrency, "concurrent table fetches")
	_ = cmd.MarkFlagRequired("dsn")
	return cmd
}

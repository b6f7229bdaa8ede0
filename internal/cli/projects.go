package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/api"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// metaFetchConcurrency bounds concurrent project-meta requests.
const metaFetchConcurrency = 4

// projectInfo is a project with its table names, as printed by
// "projects list --tables".
type projectInfo struct {
	types.Project
	Tables []string `json:"tables"`
}

// projectTables fetches the table names of every project concurrently.
func projectTables(ctx context.Context, c *api.Client, projects []types.Project) ([]projectInfo, error) {
	type result struct {
		index int
		info  projectInfo
	}
	p := pool.NewWithResults[result]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(metaFetchConcurrency)
	for i, proj := range projects {
		p.Go(func(ctx context.Context) (result, error) {
			metas, err := c.ProjectMeta(ctx, proj.Name)
			if err != nil {
				return result{}, fmt.Errorf("project %q: %w", proj.Name, err)
			}
			names := make([]string, len(metas))
			for j, m := range metas {
				names[j] = m.Name
			}
			return result{index: i, info: projectInfo{Project: proj, Tables: names}}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	infos := make([]projectInfo, len(results))
	for i, r := range results {
		infos[i] = r.info
	}
	return infos, nil
}

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Manage your projects",
	}

	var withTables bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List your projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			projects, err := c.api.Projects(cmd.Context())
			if err != nil {
				return apiError("list projects", err)
			}
			if !withTables {
				if a.jsonOut() {
					return printJSON(stdout(cmd), projects)
				}
				t := newTable(stdout(cmd), "NAME", "OWNER", "CREATED")
				for _, p := range projects {
					t.row(p.Name, strconv.FormatInt(p.Owner, 10), formatTime(p.Created))
				}
				return t.flush()
			}

			infos, err := projectTables(cmd.Context(), c.api, projects)
			if err != nil {
				return apiError("list project tables", err)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), infos)
			}
			t := newTable(stdout(cmd), "NAME", "CREATED", "TABLES")
			for _, p := range infos {
				t.row(p.Name, formatTime(p.Created), strings.Join(p.Tables, ", "))
			}
			return t.flush()
		},
	}
	list.Flags().BoolVar(&withTables, "tables", false, "also list each project's tables")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.api.CreateProject(cmd.Context(), name); err != nil {
				if errors.Is(err, types.ErrConflict) {
					return userError(&displayError{msg: fmt.Sprintf("Name '%s' already in use", name), err: err})
				}
				return apiError("create project", err)
			}
			fmt.Fprintf(stdout(cmd), "Created project %s\n", name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a project and all of its tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.api.DeleteProject(cmd.Context(), args[0]); err != nil {
				return apiError("delete project", err)
			}
			fmt.Fprintf(stdout(cmd), "Deleted project %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

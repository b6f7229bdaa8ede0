package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// RawRow is one row of table data as returned by the backend. Use
// rows.DecodeRow to type it against the table's columns.
type RawRow map[string]json.RawMessage

// ProjectMeta returns the schemas of every table in project.
func (c *Client) ProjectMeta(ctx context.Context, project string) ([]types.TableMeta, error) {
	var metas []types.TableMeta
	err := c.do(ctx, "get project meta", http.MethodGet,
		[]string{"project", project, "get", "meta"}, nil, &metas, func() error {
			for _, m := range metas {
				if err := checkTableMeta(m); err != nil {
					return err
				}
			}
			return nil
		})
	return metas, err
}

// CreateTable creates a table in project. A duplicate table name fails with
// types.ErrConflict; the backend's TableAlreadyExists text also matches
// types.ErrTableAlreadyExists.
func (c *Client) CreateTable(ctx context.Context, project string, meta types.TableMeta) error {
	return c.do(ctx, "create table", http.MethodPut,
		[]string{"project", project, "create", "table"}, meta, nil, nil)
}

// RemoveTable drops a table from project.
func (c *Client) RemoveTable(ctx context.Context, project, table string) error {
	return c.do(ctx, "remove table", http.MethodDelete,
		[]string{"project", project, "remove", "table", table}, nil, nil, nil)
}

// TableMeta returns the schema of one table.
func (c *Client) TableMeta(ctx context.Context, project, table string) (types.TableMeta, error) {
	var meta types.TableMeta
	err := c.do(ctx, "get table meta", http.MethodGet,
		[]string{"project", project, "get", "table", table, "meta"}, nil, &meta,
		func() error { return checkTableMeta(meta) })
	return meta, err
}

// TableData returns every row of one table.
func (c *Client) TableData(ctx context.Context, project, table string) ([]RawRow, error) {
	var rows []RawRow
	err := c.do(ctx, "get table data", http.MethodGet,
		[]string{"project", project, "get", "table", table, "data"}, nil, &rows, nil)
	return rows, err
}

// InsertRow appends one row to a table.
func (c *Client) InsertRow(ctx context.Context, project, table string, row types.Row) error {
	return c.do(ctx, "insert row", http.MethodPut,
		[]string{"project", project, "insert", table}, row, nil, nil)
}

// ClearTable deletes every row of a table, keeping its schema.
func (c *Client) ClearTable(ctx context.Context, project, table string) error {
	return c.do(ctx, "clear table", http.MethodDelete,
		[]string{"project", project, "remove", table, "all"}, nil, nil, nil)
}

func checkTableMeta(m types.TableMeta) error {
	if m.Name == "" {
		return errMissing("name")
	}
	for i, col := range m.Columns {
		if col.Name == "" || col.Type == "" {
			return fmt.Errorf("table %q column %d: %w", m.Name, i, errMissing("name/type"))
		}
	}
	return nil
}

package export_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/capture/internal/api"
	"github.com/mesh-intelligence/capture/internal/api/apitest"
	"github.com/mesh-intelligence/capture/internal/export"
	"github.com/mesh-intelligence/capture/pkg/types"
)

const owner = "ada@example.com"

func seed(t *testing.T) (*apitest.Server, *api.Client) {
	t.Helper()
	srv := apitest.NewServer(t)
	srv.AddUser(owner, "secret", types.AccessUser)
	c, err := api.New(srv.URL)
	require.NoError(t, err)
	c.SetToken(srv.IssueToken(owner).Token)

	ctx := context.Background()
	require.NoError(t, c.CreateProject(ctx, "shop"))
	require.NoError(t, c.CreateTable(ctx, "shop", types.TableMeta{
		Name: "customers",
		Columns: []types.ColumnMeta{
			{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
			{Name: "name", Type: types.TypeText, NotNull: true},
			{Name: "vip", Type: types.TypeBoolean},
		},
	}))
	require.NoError(t, c.CreateTable(ctx, "shop", types.TableMeta{
		Name: "orders",
		Columns: []types.ColumnMeta{
			{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
			{Name: "customer", Type: types.TypeInteger, ForeignKey: &types.ForeignKey{Table: "customers", Column: "id"}},
			{Name: "total", Type: types.TypeReal},
			{Name: "placed", Type: types.TypeTimestamp},
		},
	}))

	placed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, c.InsertRow(ctx, "shop", "customers", types.Row{"id": 1, "name": "Grace", "vip": true}))
	require.NoError(t, c.InsertRow(ctx, "shop", "customers", types.Row{"id": 2, "name": "Linus", "vip": nil}))
	require.NoError(t, c.InsertRow(ctx, "shop", "orders", types.Row{"id": 10, "customer": 1, "total": 12.5, "placed": placed}))
	return srv, c
}

func openSQLite(t *testing.T) *export.DB {
	t.Helper()
	db, err := export.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.Equal(t, export.SQLite, db.Dialect)
	return db
}

func TestProjectToSQLite(t *testing.T) {
	_, c := seed(t)
	db := openSQLite(t)
	ctx := context.Background()

	res, err := export.Project(ctx, c, "shop", db, export.Options{Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, "shop", res.Project)
	assert.Equal(t, []export.TableResult{
		{Name: "customers", Rows: 2},
		{Name: "orders", Rows: 1},
	}, res.Tables)

	var name string
	var vip int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT name, vip FROM customers WHERE id = 1`).Scan(&name, &vip))
	assert.Equal(t, "Grace", name)
	assert.Equal(t, int64(1), vip)

	var nullVIP any
	require.NoError(t, db.QueryRowContext(ctx, `SELECT vip FROM customers WHERE id = 2`).Scan(&nullVIP))
	assert.Nil(t, nullVIP)

	var total float64
	var customer int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT customer, total FROM orders WHERE id = 10`).Scan(&customer, &total))
	assert.Equal(t, int64(1), customer)
	assert.InDelta(t, 12.5, total, 1e-9)
}

func TestProjectReplace(t *testing.T) {
	_, c := seed(t)
	db := openSQLite(t)
	ctx := context.Background()

	_, err := export.Project(ctx, c, "shop", db, export.Options{})
	require.NoError(t, err)

	_, err = export.Project(ctx, c, "shop", db, export.Options{})
	assert.Error(t, err, "tables already exist")

	_, err = export.Project(ctx, c, "shop", db, export.Options{Replace: true})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestProjectFetchFailureWritesNothing(t *testing.T) {
	srv, c := seed(t)
	db := openSQLite(t)
	ctx := context.Background()

	srv.Fail(apitest.RouteTableData, http.StatusInternalServerError)
	_, err := export.Project(ctx, c, "shop", db, export.Options{})
	require.Error(t, err)

	var apiErr *types.APIError
	assert.True(t, errors.As(err, &apiErr))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&n))
	assert.Zero(t, n)
}

func TestProjectUnknownProject(t *testing.T) {
	_, c := seed(t)
	db := openSQLite(t)

	_, err := export.Project(context.Background(), c, "missing", db, export.Options{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := export.Open(context.Background(), "sqlserver", "whatever")
	assert.ErrorIs(t, err, export.ErrUnsupportedDriver)
}

func TestDumpAndRestore(t *testing.T) {
	srv, c := seed(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "dump")

	res, err := export.Dump(ctx, c, "shop", dir, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, []export.TableResult{
		{Name: "customers", Rows: 2},
		{Name: "orders", Rows: 1},
	}, res.Tables)
	assert.FileExists(t, filepath.Join(dir, export.SchemaFileName))
	assert.FileExists(t, filepath.Join(dir, "customers.jsonl"))

	require.NoError(t, c.CreateProject(ctx, "shop-copy"))
	res, err = export.Restore(ctx, c, "shop-copy", dir, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, []export.TableResult{
		{Name: "customers", Rows: 2},
		{Name: "orders", Rows: 1},
	}, res.Tables)

	metas, err := c.ProjectMeta(ctx, "shop-copy")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "customers", metas[0].Name, "referenced tables are created first")
	assert.Len(t, srv.Rows(owner, "shop-copy", "customers"), 2)
	assert.Len(t, srv.Rows(owner, "shop-copy", "orders"), 1)

	_, err = export.Restore(ctx, c, "shop-copy", dir, export.Options{})
	assert.ErrorIs(t, err, types.ErrConflict, "tables already exist")
}

func TestRestoreWithoutSchema(t *testing.T) {
	_, c := seed(t)
	_, err := export.Restore(context.Background(), c, "shop", t.TempDir(), export.Options{})
	assert.ErrorIs(t, err, export.ErrNoSchema)
}

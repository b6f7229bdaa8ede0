package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/capture/internal/api/apitest"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// harness runs the command tree in-process against a fake backend.
type harness struct {
	t         *testing.T
	srv       *apitest.Server
	apiURL    string
	configDir string
	dataDir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, env := range []string{"CAPTURE_API_URL", "CAPTURE_OUTPUT", "CAPTURE_LOG_LEVEL", "CAPTURE_REFRESH_INTERVAL", "CAPTURE_REQUEST_TIMEOUT"} {
		t.Setenv(env, "")
	}
	srv := apitest.NewServer(t)
	srv.AddUser("ada@example.com", "secret", types.AccessUser)
	srv.AddUser("root@example.com", "hunter2", types.AccessAdmin)
	dir := t.TempDir()
	return &harness{
		t:         t,
		srv:       srv,
		apiURL:    srv.URL,
		configDir: filepath.Join(dir, "config"),
		dataDir:   filepath.Join(dir, "data"),
	}
}

// run executes capture with args and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	return h.runWithInput("", args...)
}

func (h *harness) runWithInput(stdin string, args ...string) (string, error) {
	h.t.Helper()
	a := &app{}
	root := newRootCmd(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--config-dir", h.configDir,
		"--data-dir", h.dataDir,
		"--api-url", h.apiURL,
	}, args...))
	err := root.ExecuteContext(context.Background())
	require.NoError(h.t, a.close())
	return out.String(), err
}

func (h *harness) login(email, password string) {
	h.t.Helper()
	_, err := h.run("login", "--email", email, "--password", password)
	require.NoError(h.t, err)
}

func TestLoginThenListProjects(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "--email", "ada@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ada@example.com (User)")

	_, err = h.run("projects", "create", "survey")
	require.NoError(t, err)

	out, err = h.run("projects", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "survey")
}

func TestLoginPasswordFromStdin(t *testing.T) {
	h := newHarness(t)

	out, err := h.runWithInput("secret\n", "login", "--email", "ada@example.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")
}

func TestLoginFieldErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login", "--email", "nobody@example.com", "--password", "secret")
	require.Error(t, err)
	assert.Equal(t, "email: no account with that address", err.Error())
	assert.ErrorIs(t, err, types.ErrEmailNotFound)
	assert.Equal(t, exitUserError, exitCode(err))

	_, err = h.run("login", "--email", "ada@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "password: wrong password", err.Error())
	assert.ErrorIs(t, err, types.ErrWrongPassword)

	_, err = h.run("whoami")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated, "failed login must not leave a session")
}

func TestLoginRequiresPassword(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("login", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("whoami")
	require.Error(t, err)
	assert.Equal(t, "not logged in", err.Error())
	assert.Equal(t, exitUserError, exitCode(err))

	h.login("ada@example.com", "secret")
	out, err := h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com (User)")
	assert.NotContains(t, out, "User management")

	h.login("root@example.com", "hunter2")
	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "root@example.com (Admin)")
	assert.Contains(t, out, "User management")
}

func TestDuplicateProjectName(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")

	_, err := h.run("projects", "create", "newproject")
	require.NoError(t, err)

	_, err = h.run("projects", "create", "newproject")
	require.Error(t, err)
	assert.Equal(t, "Name 'newproject' already in use", err.Error())
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestCreateTablesWithForeignKey(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)

	out, err := h.run("tables", "create", "shop", "customers",
		"--column", "id:integer:pk", "--column", "name:text:notnull")
	require.NoError(t, err)
	assert.Contains(t, out, "Created table customers with 2 column(s)")

	out, err = h.run("tables", "create", "shop", "orders",
		"--column", "id:integer:pk", "--column", "customer:integer:fk=customers")
	require.NoError(t, err)
	assert.Contains(t, out, "customer references customers.id")

	out, err = h.run("--json", "tables", "meta", "shop", "orders")
	require.NoError(t, err)
	var meta types.TableMeta
	require.NoError(t, json.Unmarshal([]byte(out), &meta))
	col, ok := meta.Column("customer")
	require.True(t, ok)
	require.NotNil(t, col.ForeignKey)
	assert.Equal(t, types.ForeignKey{Table: "customers", Column: "id"}, *col.ForeignKey)

	out, err = h.run("projects", "list", "--tables")
	require.NoError(t, err)
	assert.Contains(t, out, "customers, orders")
}

func TestCreateTableErrors(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)
	_, err = h.run("tables", "create", "shop", "customers", "--column", "id:integer:pk")
	require.NoError(t, err)

	_, err = h.run("tables", "create", "shop", "customers", "--column", "id:integer:pk")
	require.Error(t, err)
	assert.Equal(t, "Table 'customers' already exists", err.Error())

	_, err = h.run("tables", "create", "shop", "notes", "--column", "body:text:fk=nowhere")
	assert.Error(t, err, "foreign key to an unknown table")

	_, err = h.run("tables", "create", "shop", "--column", "id:integer")
	assert.Error(t, err, "missing table name")

	_, err = h.run("tables", "create", "missing", "t", "--column", "id:integer")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCreateTableFromFile(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, writeFile(path, `name: items
columns:
  - name: sku
    type: text
    primary_key: true
  - name: price
    type: real
    not_null: true
`))
	out, err := h.run("tables", "create", "shop", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created table items with 2 column(s)")
}

func TestRowsInsertAndData(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)
	_, err = h.run("tables", "create", "shop", "customers",
		"--column", "id:integer:pk", "--column", "name:text:notnull", "--column", "vip:boolean")
	require.NoError(t, err)

	out, err := h.run("rows", "insert", "shop", "customers", "id=1", "name=Grace", "vip=true")
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted 1 row into customers")

	_, err = h.run("rows", "insert", "shop", "customers", "id=2", "vip=maybe")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))

	out, err = h.run("tables", "data", "shop", "customers")
	require.NoError(t, err)
	assert.Contains(t, out, "Grace")
	assert.Contains(t, out, "true")

	_, err = h.run("rows", "clear", "shop", "customers")
	require.NoError(t, err)
	assert.Empty(t, h.srv.Rows("ada@example.com", "shop", "customers"))
}

func TestUsersRequireAdmin(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")

	_, err := h.run("users", "list")
	require.Error(t, err)
	assert.Equal(t, "admin access required", err.Error())

	h.login("root@example.com", "hunter2")
	_, err = h.run("users", "create", "--email", "new@example.com", "--password", "pw", "--access", "admin")
	require.NoError(t, err)

	out, err := h.run("users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "new@example.com")

	_, err = h.run("users", "remove", "new@example.com")
	require.NoError(t, err)
	out, err = h.run("users", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "new@example.com")
}

func TestLogoutAlwaysSucceedsLocally(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")

	h.srv.Fail(apitest.RouteRemoveToken, http.StatusInternalServerError)
	out, err := h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	h.srv.Fail(apitest.RouteRemoveToken, 0)
	_, err = h.run("whoami")
	assert.ErrorIs(t, err, types.ErrNotAuthenticated)

	out, err = h.run("logout")
	require.NoError(t, err, "logging out twice is fine")
	assert.Contains(t, out, "Logged out")
}

func TestLogoutWithUnreachableBackend(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")

	h.srv.Close()
	out, err := h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
}

func TestRefreshWhenDue(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("config", "set", "refresh_interval", "1ns")
	require.NoError(t, err)
	h.login("ada@example.com", "secret")

	before := h.srv.Calls(apitest.RouteRefreshToken)
	_, err = h.run("whoami")
	require.NoError(t, err)
	assert.Greater(t, h.srv.Calls(apitest.RouteRefreshToken), before)

	_, err = h.run("whoami")
	require.NoError(t, err, "the refreshed token was stored")
}

func TestSessionRefreshFailureKeepsToken(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")

	h.srv.Fail(apitest.RouteRefreshToken, http.StatusInternalServerError)
	_, err := h.run("session", "refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeping current token")

	h.srv.Fail(apitest.RouteRefreshToken, 0)
	_, err = h.run("whoami")
	assert.NoError(t, err)

	out, err := h.run("session", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Session refreshed")
}

func TestSessionStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("session", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Unauthenticated")

	h.login("ada@example.com", "secret")
	out, err = h.run("--json", "session", "status")
	require.NoError(t, err)
	var st sessionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "Authenticated", st.State)
	require.NotNil(t, st.User)
	assert.Equal(t, "ada@example.com", st.User.Email)
	assert.Equal(t, "10m0s", st.Interval)
}

func TestSessionWatchStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")

	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config-dir", h.configDir, "--data-dir", h.dataDir, "--api-url", h.apiURL, "session", "watch"})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))
	require.NoError(t, a.close())
	assert.Contains(t, out.String(), "interrupt to stop")
}

func TestNetworkFailureIsSystemError(t *testing.T) {
	h := newHarness(t)
	h.srv.Close()

	_, err := h.run("login", "--email", "ada@example.com", "--password", "secret")
	require.Error(t, err)
	assert.Equal(t, exitSysError, exitCode(err))
}

func TestExportToSQLite(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)
	_, err = h.run("tables", "create", "shop", "customers", "--column", "id:integer:pk", "--column", "name:text")
	require.NoError(t, err)
	_, err = h.run("rows", "insert", "shop", "customers", "id=1", "name=Grace")
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "shop.db")
	out, err := h.run("export", "shop", "--driver", "sqlite3", "--dsn", target)
	require.NoError(t, err)
	assert.Contains(t, out, "customers")

	db, err := sql.Open("sqlite", target)
	require.NoError(t, err)
	defer db.Close()
	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM customers WHERE id = 1`).Scan(&name))
	assert.Equal(t, "Grace", name)

	_, err = h.run("export", "shop", "--driver", "oracle", "--dsn", "x")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.configDir, "config.yaml")+"\n", out)

	_, err = h.run("config", "set", "log_level", "error")
	require.NoError(t, err)

	out, err = h.run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: error")
	assert.Contains(t, out, "api_url: "+h.apiURL, "the --api-url flag wins over the file")
	assert.Contains(t, out, "data_dir: "+h.dataDir)

	_, err = h.run("config", "set", "output", "xml")
	assert.ErrorIs(t, err, types.ErrOutputUnknown)

	_, err = h.run("config", "set", "bogus", "1")
	assert.Error(t, err)
}

func TestPrefsDriveOutputMode(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)

	_, err = h.run("prefs", "set", "output", "json")
	require.NoError(t, err)
	_, err = h.run("prefs", "set", "theme", "purple")
	assert.Error(t, err)

	out, err := h.run("projects", "list")
	require.NoError(t, err)
	var projects []types.Project
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "shop", projects[0].Name)

	out, err = h.run("prefs", "get", "output")
	require.NoError(t, err)
	assert.Equal(t, "json\n", out)
}

func TestInitAndVersion(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("init")
	require.NoError(t, err)
	assert.Contains(t, out, "Capture initialized successfully")
	assert.Contains(t, out, filepath.Join(h.dataDir, "capture.db"))

	out, err = h.run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "capture v"+Version)
}

func TestDumpAndRestoreCommands(t *testing.T) {
	h := newHarness(t)
	h.login("ada@example.com", "secret")
	_, err := h.run("projects", "create", "shop")
	require.NoError(t, err)
	_, err = h.run("tables", "create", "shop", "customers", "--column", "id:integer:pk", "--column", "name:text")
	require.NoError(t, err)
	_, err = h.run("rows", "insert", "shop", "customers", "id=1", "name=Grace")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "backup")
	out, err := h.run("dump", "shop", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "customers")

	out, err = h.run("restore", "shop-copy", "--dir", dir, "--create")
	require.NoError(t, err)
	assert.Contains(t, out, "customers")
	assert.Len(t, h.srv.Rows("ada@example.com", "shop-copy", "customers"), 1)

	_, err = h.run("restore", "shop-copy")
	assert.Error(t, err, "--dir is required")
}

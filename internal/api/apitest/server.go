// Package apitest provides an in-memory implementation of the data-capture
// backend's REST contract for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/capture/pkg/types"
)

// Route names accepted by Server.Fail.
const (
	RouteSessionToken = "session-token"
	RouteRefreshToken = "refresh-token"
	RouteRemoveToken  = "remove-token"
	RouteUserByToken  = "user-by-token"
	RouteProjects     = "projects"
	RouteProjectMeta  = "project-meta"
	RouteTableData    = "table-data"
)

type account struct {
	user     types.User
	password string
}

type table struct {
	meta types.TableMeta
	rows []map[string]json.RawMessage
}

type project struct {
	info   types.Project
	tables map[string]*table
	order  []string
}

// Server is a fake backend. All state lives in memory and is safe for
// concurrent use by the handlers.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	accounts map[string]*account // by email
	tokens   map[string]int64    // token -> user id
	projects map[int64]map[string]*project
	failures map[string]int
	calls    map[string]int
}

// NewServer starts a fake backend that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]int64),
		projects: make(map[int64]map[string]*project),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account and returns it.
func (s *Server) AddUser(email, password string, access types.Access) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, access)
}

func (s *Server) addUserLocked(email, password string, access types.Access) types.User {
	s.nextID++
	u := types.User{ID: s.nextID, Email: email, Access: access}
	s.accounts[email] = &account{user: u, password: password}
	return u
}

// IssueToken returns a valid token for an existing account.
func (s *Server) IssueToken(email string) types.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[email]
	return s.issueLocked(a.user.ID)
}

func (s *Server) issueLocked(userID int64) types.Token {
	tok := types.Token{
		User:    userID,
		Token:   uuid.NewString(),
		Created: time.Now().UTC().Truncate(time.Second),
	}
	s.tokens[tok.Token] = userID
	return tok
}

// Revoke invalidates a token as if it had expired on the backend.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// TokenValid reports whether the backend still accepts token.
func (s *Server) TokenValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// Fail makes every following request to route answer with status until
// Fail is called again with status 0.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Rows returns a copy of the stored rows of a table.
func (s *Server) Rows(ownerEmail, projectName, tableName string) []map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[ownerEmail]
	if a == nil {
		return nil
	}
	p := s.projects[a.user.ID][projectName]
	if p == nil || p.tables[tableName] == nil {
		return nil
	}
	return append([]map[string]json.RawMessage(nil), p.tables[tableName].rows...)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/session-token", s.handleSessionToken)
	mux.HandleFunc("POST /auth/refresh-token/{token}", s.handleRefreshToken)
	mux.HandleFunc("DELETE /auth/remove-token/{token}", s.handleRemoveToken)
	mux.HandleFunc("GET /get/user/by/token/{token}", s.handleUserByToken)
	mux.HandleFunc("GET /get/users", s.admin(s.handleUsers))
	mux.HandleFunc("PUT /create/user", s.admin(s.handleCreateUser))
	mux.HandleFunc("DELETE /remove/user/{email}", s.admin(s.handleRemoveUser))
	mux.HandleFunc("GET /get/projects", s.authed(s.handleProjects))
	mux.HandleFunc("PUT /create/project/{name}", s.authed(s.handleCreateProject))
	mux.HandleFunc("DELETE /delete/project/{name}", s.authed(s.handleDeleteProject))
	mux.HandleFunc("GET /project/{name}/get/meta", s.authed(s.handleProjectMeta))
	mux.HandleFunc("PUT /project/{name}/create/table", s.authed(s.handleCreateTable))
	mux.HandleFunc("GET /project/{name}/get/table/{table}/meta", s.authed(s.handleTableMeta))
	mux.HandleFunc("GET /project/{name}/get/table/{table}/data", s.authed(s.handleTableData))
	mux.HandleFunc("PUT /project/{name}/insert/{table}", s.authed(s.handleInsert))
	// remove/table/{table} and remove/{table}/all overlap as mux patterns.
	mux.HandleFunc("DELETE /project/{name}/remove/{rest...}", s.authed(s.handleRemove))
	return mux
}

// failure records the call and reports an injected failure, if any.
func (s *Server) failure(w http.ResponseWriter, route string) bool {
	s.mu.Lock()
	s.calls[route]++
	status := s.failures[route]
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return true
	}
	return false
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u types.User)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		u, found := s.userByTokenLocked(tok)
		s.mu.Unlock()
		if !found {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r, u)
	}
}

func (s *Server) admin(h authedHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u types.User) {
		if !u.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		h(w, r, u)
	})
}

func (s *Server) userByTokenLocked(tok string) (types.User, bool) {
	id, ok := s.tokens[tok]
	if !ok {
		return types.User{}, false
	}
	for _, a := range s.accounts {
		if a.user.ID == id {
			return a.user, true
		}
	}
	return types.User{}, false
}

func (s *Server) handleSessionToken(w http.ResponseWriter, r *http.Request) {
	if s.failure(w, RouteSessionToken) {
		return
	}
	var creds types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[creds.Email]
	switch {
	case !ok:
		http.Error(w, "EmailNotFound", http.StatusUnauthorized)
	case a.password != creds.Password:
		http.Error(w, "WrongPassword", http.StatusUnauthorized)
	default:
		writeJSON(w, http.StatusOK, s.issueLocked(a.user.ID))
	}
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if s.failure(w, RouteRefreshToken) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := r.PathValue("token")
	id, ok := s.tokens[old]
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	delete(s.tokens, old)
	writeJSON(w, http.StatusOK, s.issueLocked(id))
}

func (s *Server) handleRemoveToken(w http.ResponseWriter, r *http.Request) {
	if s.failure(w, RouteRemoveToken) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := r.PathValue("token")
	if _, ok := s.tokens[tok]; !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	delete(s.tokens, tok)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserByToken(w http.ResponseWriter, r *http.Request) {
	if s.failure(w, RouteUserByToken) {
		return
	}
	s.mu.Lock()
	u, ok := s.userByTokenLocked(r.PathValue("token"))
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ types.User) {
	s.mu.Lock()
	users := make([]types.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		users = append(users, a.user)
	}
	s.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, _ types.User) {
	var nu types.NewUser
	if err := json.NewDecoder(r.Body).Decode(&nu); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[nu.Email]; ok {
		http.Error(w, "EmailAlreadyExists", http.StatusConflict)
		return
	}
	s.addUserLocked(nu.Email, nu.Password, nu.Access)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request, _ types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := r.PathValue("email")
	a, ok := s.accounts[email]
	if !ok {
		http.Error(w, "EmailNotFound", http.StatusNotFound)
		return
	}
	for tok, id := range s.tokens {
		if id == a.user.ID {
			delete(s.tokens, tok)
		}
	}
	delete(s.projects, a.user.ID)
	delete(s.accounts, email)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, u types.User) {
	if s.failure(w, RouteProjects) {
		return
	}
	s.mu.Lock()
	out := make([]types.Project, 0, len(s.projects[u.ID]))
	for _, p := range s.projects[u.ID] {
		out = append(out, p.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, u types.User) {
	name := r.PathValue("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects[u.ID] == nil {
		s.projects[u.ID] = make(map[string]*project)
	}
	if _, ok := s.projects[u.ID][name]; ok {
		http.Error(w, "ProjectAlreadyExists", http.StatusConflict)
		return
	}
	s.projects[u.ID][name] = &project{
		info:   types.Project{Owner: u.ID, Name: name, Created: time.Now().UTC().Truncate(time.Second)},
		tables: make(map[string]*table),
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, u types.User) {
	name := r.PathValue("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[u.ID][name]; !ok {
		http.Error(w, "ProjectNotFound", http.StatusNotFound)
		return
	}
	delete(s.projects[u.ID], name)
	w.WriteHeader(http.StatusNoContent)
}

// projectLocked returns the caller's project or writes a 404.
func (s *Server) projectLocked(w http.ResponseWriter, u types.User, name string) *project {
	p := s.projects[u.ID][name]
	if p == nil {
		http.Error(w, "ProjectNotFound", http.StatusNotFound)
	}
	return p
}

func (s *Server) tableLocked(w http.ResponseWriter, u types.User, projectName, tableName string) *table {
	p := s.projectLocked(w, u, projectName)
	if p == nil {
		return nil
	}
	t := p.tables[tableName]
	if t == nil {
		http.Error(w, "TableNotFound", http.StatusNotFound)
	}
	return t
}

func (s *Server) handleProjectMeta(w http.ResponseWriter, r *http.Request, u types.User) {
	if s.failure(w, RouteProjectMeta) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectLocked(w, u, r.PathValue("name"))
	if p == nil {
		return
	}
	metas := make([]types.TableMeta, 0, len(p.order))
	for _, name := range p.order {
		metas = append(metas, p.tables[name].meta)
	}
	writeJSON(w, http.StatusOK, metas)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request, u types.User) {
	var meta types.TableMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.projectLocked(w, u, r.PathValue("name"))
	if p == nil {
		return
	}
	if _, ok := p.tables[meta.Name]; ok {
		http.Error(w, "TableAlreadyExists", http.StatusConflict)
		return
	}
	if meta.Name == "" || len(meta.Columns) == 0 {
		http.Error(w, "InvalidTable", http.StatusBadRequest)
		return
	}
	for _, c := range meta.Columns {
		if c.ForeignKey == nil {
			continue
		}
		ref := p.tables[c.ForeignKey.Table]
		if ref == nil {
			http.Error(w, fmt.Sprintf("ForeignTableNotFound: %s", c.ForeignKey.Table), http.StatusBadRequest)
			return
		}
		pks := ref.meta.PrimaryKeys()
		if len(pks) != 1 || pks[0].Name != c.ForeignKey.Column {
			http.Error(w, fmt.Sprintf("InvalidForeignKey: %s.%s", c.ForeignKey.Table, c.ForeignKey.Column), http.StatusBadRequest)
			return
		}
	}
	p.tables[meta.Name] = &table{meta: meta}
	p.order = append(p.order, meta.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableMeta(w http.ResponseWriter, r *http.Request, u types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(w, u, r.PathValue("name"), r.PathValue("table"))
	if t == nil {
		return
	}
	writeJSON(w, http.StatusOK, t.meta)
}

func (s *Server) handleTableData(w http.ResponseWriter, r *http.Request, u types.User) {
	if s.failure(w, RouteTableData) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(w, u, r.PathValue("name"), r.PathValue("table"))
	if t == nil {
		return
	}
	rows := t.rows
	if rows == nil {
		rows = []map[string]json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request, u types.User) {
	var row map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(w, u, r.PathValue("name"), r.PathValue("table"))
	if t == nil {
		return
	}
	for col := range row {
		if _, ok := t.meta.Column(col); !ok {
			http.Error(w, fmt.Sprintf("UnknownColumn: %s", col), http.StatusBadRequest)
			return
		}
	}
	t.rows = append(t.rows, row)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request, u types.User) {
	projectName := r.PathValue("name")
	parts := strings.Split(r.PathValue("rest"), "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(parts) == 2 && parts[0] == "table":
		p := s.projectLocked(w, u, projectName)
		if p == nil {
			return
		}
		if _, ok := p.tables[parts[1]]; !ok {
			http.Error(w, "TableNotFound", http.StatusNotFound)
			return
		}
		delete(p.tables, parts[1])
		for i, name := range p.order {
			if name == parts[1] {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	case len(parts) == 2 && parts[1] == "all":
		t := s.tableLocked(w, u, projectName, parts[0])
		if t == nil {
			return
		}
		t.rows = nil
	default:
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/capture/internal/api"
	"github.com/mesh-intelligence/capture/internal/paths"
	"github.com/mesh-intelligence/capture/internal/session"
	"github.com/mesh-intelligence/capture/internal/store"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// dataDir resolves the data directory: --data-dir > data_dir >
// CAPTURE_DATA_DIR > platform default.
func (a *app) dataDir() (string, error) {
	return paths.ResolveDataDir(a.flags.dataDir, a.cfg.DataDir)
}

// openStore attaches the local state database. The app closes it when the
// command finishes.
func (a *app) openStore() (*store.Backend, error) {
	if a.store != nil {
		return a.store, nil
	}
	dir, err := a.dataDir()
	if err != nil {
		return nil, sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	b := store.NewBackend()
	if err := b.Attach(dir); err != nil {
		return nil, sysError(fmt.Errorf("attach state store: %w", err))
	}
	a.store = b
	return b, nil
}

// close detaches the state store if one was opened. Idempotent.
func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Detach()
	a.store = nil
	return err
}

// client builds an API client from the config.
func (a *app) client() (*api.Client, error) {
	opts := []api.Option{api.WithLogger(a.log), api.WithTimeout(a.cfg.RequestTimeout)}
	if a.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(a.httpClient))
	}
	c, err := api.New(a.cfg.APIURL, opts...)
	if err != nil {
		return nil, userError(err)
	}
	return c, nil
}

// conn is an API client paired with its session manager.
type conn struct {
	api     *api.Client
	session *session.Manager
}

// connect opens the store and builds an unauthenticated connection.
func (a *app) connect() (*conn, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	mgr := session.New(c, st,
		session.WithLogger(a.log),
		session.WithInterval(a.cfg.RefreshInterval),
	)
	return &conn{api: c, session: mgr}, nil
}

// authed restores the stored session and refreshes the token when the
// refresh interval has elapsed. A failed refresh keeps the current token.
func (a *app) authed(ctx context.Context) (*conn, types.User, error) {
	c, err := a.connect()
	if err != nil {
		return nil, types.User{}, err
	}
	user, err := c.session.Restore(ctx)
	if err != nil {
		if api.IsNetworkError(err) {
			return nil, types.User{}, sysError(fmt.Errorf("backend unreachable: %w", err))
		}
		return nil, types.User{}, userError(&displayError{msg: types.ErrNotAuthenticated.Error(), err: err})
	}
	_ = c.session.RefreshIfDue(ctx)
	return c, user, nil
}

// admin is authed plus a check that the user may manage users.
func (a *app) admin(ctx context.Context) (*conn, types.User, error) {
	c, user, err := a.authed(ctx)
	if err != nil {
		return nil, types.User{}, err
	}
	if !user.IsAdmin() {
		return nil, types.User{}, userError(types.ErrForbidden)
	}
	return c, user, nil
}

// jsonOut reports whether output is JSON: --json, then the output config
// key, then the stored output preference.
func (a *app) jsonOut() bool {
	if a.flags.jsonMode {
		return true
	}
	if a.cfg.Output != "" {
		return a.cfg.Output == types.OutputJSON
	}
	if a.store != nil {
		if v, ok, err := a.store.Preference(store.PrefOutput); err == nil && ok {
			return v == types.OutputJSON
		}
	}
	return false
}

// apiError converts an API failure to an exit-coded error. Network and
// decode failures are system errors; everything else is the user's.
func apiError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	var de *types.DecodeError
	if api.IsNetworkError(err) || errors.As(err, &de) {
		return sysError(wrapped)
	}
	return userError(wrapped)
}

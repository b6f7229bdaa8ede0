package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/session"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// Inline field errors shown by login.
const (
	msgEmailNotFound = "email: no account with that address"
	msgWrongPassword = "password: wrong password"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		email         string
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store a session token",
		Long: `Login exchanges an email and password for a session token and stores
it in the local state database. Later commands reuse the token and refresh
it periodically.

Example:
  capture login --email ada@example.com --password-stdin < pw.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return userError(fmt.Errorf("read password from stdin: %w", err))
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return userError(errors.New("password: required (use --password or --password-stdin)"))
			}

			c, err := a.connect()
			if err != nil {
				return err
			}
			user, err := c.session.Login(cmd.Context(), types.Credentials{Email: email, Password: password})
			switch {
			case errors.Is(err, types.ErrEmailNotFound):
				return userError(&displayError{msg: msgEmailNotFound, err: err})
			case errors.Is(err, types.ErrWrongPassword):
				return userError(&displayError{msg: msgWrongPassword, err: err})
			case err != nil:
				return apiError("login", err)
			}

			if a.jsonOut() {
				return printJSON(stdout(cmd), user)
			}
			fmt.Fprintf(stdout(cmd), "Logged in as %s (%s)\n", user.Email, user.Access)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session token and forget it locally",
		Long: `Logout asks the backend to revoke the stored token, then clears the
local session. The local session is cleared even if the backend cannot be
reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			c.session.Logout(cmd.Context())
			fmt.Fprintln(stdout(cmd), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, user, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), user)
			}
			out := stdout(cmd)
			fmt.Fprintf(out, "%s (%s)\n", user.Email, user.Access)
			if user.IsAdmin() {
				fmt.Fprintln(out, "User management: capture users --help")
			}
			return nil
		},
	}
}

// sessionStatus is the JSON form of "session status".
type sessionStatus struct {
	State       string      `json:"state"`
	User        *types.User `json:"user,omitempty"`
	LastRefresh *time.Time  `json:"last_refresh,omitempty"`
	NextRefresh *time.Time  `json:"next_refresh,omitempty"`
	Interval    string      `json:"refresh_interval"`
}

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or refresh the session token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the session state and refresh schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := sessionStatus{
				State:    session.Unauthenticated.String(),
				Interval: a.cfg.RefreshInterval.String(),
			}
			c, user, err := a.authed(cmd.Context())
			var ee *ExitError
			if err != nil && !(errors.As(err, &ee) && ee.Code == exitUserError) {
				return err
			}
			if err == nil {
				last := c.session.LastRefresh()
				next := last.Add(c.session.Interval())
				st.State = c.session.State().String()
				st.User = &user
				st.LastRefresh = &last
				st.NextRefresh = &next
			}

			if a.jsonOut() {
				return printJSON(stdout(cmd), st)
			}
			out := stdout(cmd)
			fmt.Fprintf(out, "State:        %s\n", st.State)
			if st.User != nil {
				fmt.Fprintf(out, "User:         %s (%s)\n", st.User.Email, st.User.Access)
				fmt.Fprintf(out, "Last refresh: %s\n", st.LastRefresh.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "Next refresh: %s\n", st.NextRefresh.Local().Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Interval:     %s\n", st.Interval)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Refresh the session token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.session.Refresh(cmd.Context()); err != nil {
				return apiError("refresh failed; keeping current token", err)
			}
			fmt.Fprintln(stdout(cmd), "Session refreshed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Keep the session token fresh until interrupted",
		Long: `Watch refreshes the session token every refresh_interval until it is
interrupted. Failed refreshes are logged and the current token is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, user, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "Keeping session for %s fresh every %s; interrupt to stop\n",
				user.Email, c.session.Interval())
			err = c.session.Run(cmd.Context())
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	})

	return cmd
}

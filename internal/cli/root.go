// Package cli implements the capture command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/capture/internal/api"
	"github.com/mesh-intelligence/capture/internal/store"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	apiURL    string
	jsonMode  bool
	verbose   bool
}

// app is the state shared by one invocation of the command tree.
type app struct {
	flags     rootFlags
	v         *viper.Viper
	configDir string
	cfg       types.Config
	log       *zap.SugaredLogger

	// httpClient replaces the default transport when set.
	httpClient *http.Client
	// store is set once a command opens the local state database.
	store *store.Backend
}

// NewRootCmd creates the top-level "capture" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "capture",
		Short: "Admin client for the capture data backend",
		Long: "Capture signs in to a capture backend and manages its users, projects,\n" +
			"table schemas and rows.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory for the local state database (default: platform data dir)")
	pf.StringVar(&a.flags.apiURL, "api-url", "", "backend root URL (overrides api_url)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newPrefsCmd(a))
	root.AddCommand(newLoginCmd(a))
	root.AddCommand(newLogoutCmd(a))
	root.AddCommand(newWhoamiCmd(a))
	root.AddCommand(newSessionCmd(a))
	root.AddCommand(newUsersCmd(a))
	root.AddCommand(newProjectsCmd(a))
	root.AddCommand(newTablesCmd(a))
	root.AddCommand(newRowsCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newDumpCmd(a))
	root.AddCommand(newRestoreCmd(a))

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitCode(err)
}

// ExitError carries the exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func userError(err error) error {
	return &ExitError{Code: exitUserError, Err: err}
}

func sysError(err error) error {
	return &ExitError{Code: exitSysError, Err: err}
}

// displayError shows msg to the user while still matching err.
type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg }

func (e *displayError) Unwrap() error { return e.err }

// exitCode maps err to a process exit code. Unclassified errors are
// transport or decode failures when the API client says so, and user errors
// otherwise.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	var de *types.DecodeError
	if api.IsNetworkError(err) || errors.As(err, &de) {
		return exitSysError
	}
	return exitUserError
}

// stdout returns the command's output writer.
func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

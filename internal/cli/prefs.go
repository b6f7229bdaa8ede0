package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/internal/store"
	"github.com/mesh-intelligence/capture/pkg/types"
)

// prefValues lists the accepted values per preference key.
var prefValues = map[string][]string{
	store.PrefOutput: {types.OutputText, types.OutputJSON},
	store.PrefTheme:  {"light", "dark"},
}

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change stored preferences",
		Long: `Preferences live in the local state database next to the session.

Keys:
  output  text or json; used when the output config key is unset
  theme   light or dark`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			prefs, err := st.Preferences()
			if err != nil {
				return sysError(err)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), prefs)
			}
			keys := make([]string, 0, len(prefs))
			for k := range prefs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			t := newTable(stdout(cmd), "KEY", "VALUE")
			for _, k := range keys {
				t.row(k, prefs[k])
			}
			return t.flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			v, ok, err := st.Preference(args[0])
			if err != nil {
				return sysError(err)
			}
			if !ok {
				return userError(fmt.Errorf("preference %q is not set", args[0]))
			}
			fmt.Fprintln(stdout(cmd), v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			allowed, ok := prefValues[key]
			if !ok {
				return userError(fmt.Errorf("unknown preference %q (valid: output, theme)", key))
			}
			valid := false
			for _, v := range allowed {
				valid = valid || v == value
			}
			if !valid {
				return userError(fmt.Errorf("preference %s: %q is not one of %v", key, value, allowed))
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if err := st.SetPreference(key, value); err != nil {
				return sysError(err)
			}
			fmt.Fprintf(stdout(cmd), "Set %s = %s\n", key, value)
			return nil
		},
	})

	return cmd
}

package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/capture/pkg/types"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.admin(cmd.Context())
			if err != nil {
				return err
			}
			users, err := c.api.Users(cmd.Context())
			if err != nil {
				return apiError("list users", err)
			}
			if a.jsonOut() {
				return printJSON(stdout(cmd), users)
			}
			t := newTable(stdout(cmd), "ID", "EMAIL", "ACCESS")
			for _, u := range users {
				t.row(strconv.FormatInt(u.ID, 10), u.Email, string(u.Access))
			}
			return t.flush()
		},
	})

	var (
		email    string
		password string
		access   string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := types.ParseAccess(access)
			if err != nil {
				return userError(err)
			}
			c, _, err := a.admin(cmd.Context())
			if err != nil {
				return err
			}
			err = c.api.CreateUser(cmd.Context(), types.NewUser{Email: email, Password: password, Access: acc})
			if err != nil {
				return apiError("create user", err)
			}
			fmt.Fprintf(stdout(cmd), "Created user %s (%s)\n", email, acc)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email (required)")
	create.Flags().StringVar(&password, "password", "", "initial password (required)")
	create.Flags().StringVar(&access, "access", string(types.AccessUser), "access level: User or Admin")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <email>",
		Short: "Remove a user account with its projects and tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.admin(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.api.RemoveUser(cmd.Context(), args[0]); err != nil {
				return apiError("remove user", err)
			}
			fmt.Fprintf(stdout(cmd), "Removed user %s\n", args[0])
			return nil
		},
	})

	return cmd
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"distributor.app/internal/auth"
	"distributor.app/internal/store/pg"
)

type userInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	Superuser bool
	Cost      int
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local accounts.",
	}
	var in userInput
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create an account without going through the API.",
		Long:    "Create an account directly in PostgreSQL. Used to bootstrap the first admin.",
		Example: "distctl user create --username root --email root@example.com --role admin --superuser",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				in.Password = os.Getenv(envPrefix + "ADMIN_PASSWORD")
			}
			if in.Password == "" {
				pw, err := readPassword(cmd)
				if err != nil {
					return err
				}
				in.Password = pw
			}
			dsn, err := requireDSN()
			if err != nil {
				return err
			}
			st, err := pg.Open(dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			svc := auth.NewAccountService(st, auth.NewHasher(in.Cost), time.Now)
			view, err := svc.Provision(ctx, auth.NewAccount{
				Username:    in.Username,
				Email:       in.Email,
				FirstName:   in.FirstName,
				LastName:    in.LastName,
				Password:    in.Password,
				IsSuperuser: in.Superuser,
				Role:        in.Role,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, role %q)\n", view.ID, view.Email, view.Role)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&in.Username, "username", "", "login name (required)")
	f.StringVar(&in.Email, "email", "", "email address, also the token subject (required)")
	f.StringVar(&in.Password, "password", "", "password (default $DISTRIBUTOR_ADMIN_PASSWORD or stdin)")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&in.Role, "role", "", "role name, must exist")
	f.BoolVar(&in.Superuser, "superuser", false, "grant the superuser flag")
	f.IntVar(&in.Cost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "create [name]",
		Short:   "Add a role to the catalog.",
		Example: "distctl role create auditor",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := requireDSN()
			if err != nil {
				return err
			}
			st, err := pg.Open(dsn)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			ctx, cancel := commandContext(cmd)
			defer cancel()
			role, err := auth.NewAccountService(st, auth.NewHasher(bcrypt.DefaultCost), time.Now).ProvisionRole(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created role %d (%s)\n", role.ID, role.Name)
			return nil
		},
	})
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("password is required")
	}
	return pw, nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"triage-chatbot/internal/auth"
	"triage-chatbot/internal/config"
	"triage-chatbot/internal/db"
	"triage-chatbot/pkg"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "triagectl",
		Short:        "Administration for the triage chatbot",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(ensureUserCmd(), listUsersCmd(), migrateCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, cfg.DatabaseURL)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema applied.")
			return nil
		},
	}
}

func ensureUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure-user",
		Short: "Create a staff account or reset its password and role",
		Long: "Creates the account when the email is new.  For an existing email the\n" +
			"password, name and role are replaced.  The password is read from\n" +
			"--password or the TRIAGE_PASSWORD environment variable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("TRIAGE_PASSWORD")
			}

			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			u, err := ensureUser(cmd.Context(), db.NewRepository(conn), email, password, name, pkg.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d (%s) is a %s.\n", u.ID, u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Login email (required)")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("role", string(pkg.RoleClinician), "Role: clinician or staff")
	cmd.Flags().String("password", "", "Password; defaults to $TRIAGE_PASSWORD")
	cmd.MarkFlagRequired("email")
	return cmd
}

func listUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-users",
		Short: "List staff accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			users, err := db.NewRepository(conn).ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), users)
			return nil
		},
	}
}

type userUpserter interface {
	UpsertUser(ctx context.Context, email, passwordHash, name string, role pkg.Role) (*pkg.User, error)
}

const minPasswordLen = 8

func ensureUser(ctx context.Context, store userUpserter, email, password, name string, role pkg.Role) (*pkg.User, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if name == "" {
		name = email
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return store.UpsertUser(ctx, email, hash, name, role)
}

func printUsers(w io.Writer, users []pkg.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, u.CreatedAt.Format("2006-01-02"))
	}
	tw.Flush()
}

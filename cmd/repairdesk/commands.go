package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"repairdesk/domain/exports"
	"repairdesk/domain/reports"
	"repairdesk/domain/users"
	"repairdesk/infrastructure/rbac"
	"repairdesk/infrastructure/sqlite"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the database schema to the latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			version, err := sqlite.SchemaVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, db.Path)
			return nil
		},
	}
}

func newSeedAdminCommand(a *app) *cobra.Command {
	var name, password string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin account or reset its password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			if password == "" {
				password = a.cfg.AdminPassword
			}
			if err := users.EnsureAdmin(cmd.Context(), db, name, password); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			a.logger.Info("admin seeded", "user", name)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded admin user (username=%s)\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "admin", "admin user name")
	cmd.Flags().StringVar(&password, "password", "", "admin password (default admin_password from config)")
	return cmd
}

func newDoctorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report schema version, record counts and low stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			version, err := sqlite.SchemaVersion(ctx, db)
			if err != nil {
				return err
			}
			counts, countErr := reports.GetCounts(ctx, db, nil)
			low, err := reports.LowStock(ctx, db, 0, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database:        %s\n", db.Path)
			fmt.Fprintf(out, "schema version:  %d/%d\n", version, sqlite.LatestVersion)
			fmt.Fprintf(out, "clients:         %d\n", counts.Clients)
			fmt.Fprintf(out, "devices:         %d\n", counts.Devices)
			fmt.Fprintf(out, "products:        %d\n", counts.Products)
			fmt.Fprintf(out, "pending repairs: %d\n", counts.PendingRepairs)
			fmt.Fprintf(out, "low stock items: %d\n", len(low))
			for _, item := range low {
				fmt.Fprintf(out, "  %-10s %-30s %d/%d\n", item.Kind, item.Name, item.Quantity, item.MinStock)
			}
			fmt.Fprintf(out, "permissions:     %s\n", strings.Join(rbac.AllPermissions(), ","))
			for _, role := range rbac.Roles() {
				fmt.Fprintf(out, "  %-14s %s\n", role, strings.Join(rbac.Permissions(role), ","))
			}
			return countErr
		},
	}
}

func newExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "export <table> <file|->",
		Short:     "Write a table as CSV",
		Args:      cobra.ExactArgs(2),
		ValidArgs: exports.Tables,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			table, err := exports.Dump(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if args[1] != "-" {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := exports.WriteCSV(w, table); err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			a.logger.Info("exported table", "table", args[0], "rows", len(table.Rows), "file", args[1])
			return nil
		},
	}
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "import <table> <file|->",
		Short:     "Replace a table with the contents of a CSV file",
		Args:      cobra.ExactArgs(2),
		ValidArgs: exports.Tables,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			table, err := exports.ReadCSV(r)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			n, err := exports.Load(cmd.Context(), db, args[0], table)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows into %s\n", n, args[0])
			return nil
		},
	}
}

func newPurgeResetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-resets",
		Short: "Delete expired password reset tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			n, err := users.PurgeExpiredResets(cmd.Context(), db, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired reset tokens\n", n)
			return nil
		},
	}
}

func newAddUserCommand(a *app) *cobra.Command {
	var password, role string
	cmd := &cobra.Command{
		Use:   "add-user <name>",
		Short: "Create a user with a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			id, err := users.Add(cmd.Context(), db, a.auditSvc, "", args[0], password, role, a.policy())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id=%d)\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", "technician", "admin|technician|receptionist")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newResetTokenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-token <name>",
		Short: "Issue a single-use password reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.db()
			if err != nil {
				return err
			}
			token, ok, err := users.CreatePasswordReset(cmd.Context(), db, args[0], a.cfg.ResetTokenTTL, time.Now())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("unknown user %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

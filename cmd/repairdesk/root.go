package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"repairdesk/domain/users"
	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/config"
	"repairdesk/infrastructure/logging"
	"repairdesk/infrastructure/sqlite"
)

type rootOptions struct {
	ConfigFile string
	DBPath     string
	LogLevel   string
}

// app is what every subcommand runs against once the root has loaded the
// configuration and opened the database.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	auditSvc *audit.Service
}

func (a *app) db() (*sqlite.DB, error) {
	return a.store.DB()
}

// close releases the database. It runs after Execute returns because cobra
// skips post-run hooks when a subcommand fails.
func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *app) policy() users.Policy {
	return users.Policy{MinLength: a.cfg.PasswordMinLength}
}

func newRootCommand() (*cobra.Command, *app) {
	opts := &rootOptions{}
	a := &app{auditSvc: audit.NewService()}

	cmd := &cobra.Command{
		Use:           "repairdesk",
		Short:         "Repair shop database maintenance",
		Long:          "Manage the repair shop database: schema upgrades, admin access, health checks and CSV exchange.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigFile)
			if err != nil {
				return err
			}
			if opts.DBPath != "" {
				cfg.SQLitePath = opts.DBPath
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			a.cfg = cfg
			a.logger = logging.NewLogger(cmd.ErrOrStderr(), logging.LevelFromString(cfg.LogLevel))
			a.store = sqlite.NewStore(a.logger, sqlite.WithAdminPassword(cfg.AdminPassword))
			return a.store.Init(cmd.Context(), cfg.SQLitePath)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./repairdesk.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides sqlite_path)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug|info|warn|error (overrides log_level)")

	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newSeedAdminCommand(a))
	cmd.AddCommand(newDoctorCommand(a))
	cmd.AddCommand(newExportCommand(a))
	cmd.AddCommand(newImportCommand(a))
	cmd.AddCommand(newPurgeResetsCommand(a))
	cmd.AddCommand(newAddUserCommand(a))
	cmd.AddCommand(newResetTokenCommand(a))

	return cmd, a
}

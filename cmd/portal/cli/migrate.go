package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custportal/portal/internal/connector"
	"github.com/custportal/portal/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled database schema",
		Long: `Create the portal tables if they do not exist. The schema is bundled for
SQLite only; other databases are provisioned by their own tooling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(commandContext(cmd))
		},
	}
}

func runMigrate(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := newRegistry().Open(connector.ConnectionConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return err
	}
	st := store.New(conn)
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	fmt.Printf("Schema applied (%s)\n", cfg.Database.Driver)
	return nil
}

package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custportal/portal/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and openapi

	// v holds the merged file, environment and flag settings.
	v = viper.New()
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(commit, date)
	return rootCmd.Execute()
}

func newRootCmd(commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Multi-tenant customer portal API server",
		Long: `Portal serves the customer portal API: customer accounts, roles with
per-module permissions, and customer-scoped business records such as orders,
payments and invoice deliveries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Configure(v, cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./portal.yaml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(commit, date))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newRoleCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

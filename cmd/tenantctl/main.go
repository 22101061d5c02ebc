package main

import (
	"fmt"
	"os"

	"github.com/opentrusty/tenancy/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	_ = config.LoadDotEnv()

	rootCmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Tenant lifecycle and database provisioning tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		migrateCmd(),
		createCmd(),
		provisionCmd(),
		migrateTenantsCmd(),
		historyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

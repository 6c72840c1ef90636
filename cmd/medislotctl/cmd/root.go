package cmd

import (
	"fmt"
	"os"

	"medislot/pkg/config"

	"github.com/spf13/cobra"
)

const ServiceName = "medislotctl"

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "medislotctl",
		Short:        "Provisioning tool for the medislot booking service",
		SilenceUsage: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads configuration and opens the Mongo connection. Callers defer
// cfg.GracefulShutdown.
func connect() *config.Config {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	return cfg
}

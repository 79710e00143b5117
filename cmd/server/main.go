package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clusterbench",
		Short:        "Interactive constrained clustering workbench",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

type serveFlags struct {
	host       string
	port       int
	reload     bool
	configPath string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background task runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.host, "host", "", "listen address (overrides HOST)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "listen port (overrides PORT)")
	cmd.Flags().BoolVar(&flags.reload, "reload", false, "watch the config file and apply log level changes")
	cmd.Flags().StringVar(&flags.configPath, "config", os.Getenv("CLUSTERBENCH_CONFIG_PATH"), "YAML config file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "clusterbench", version)
		},
	}
}

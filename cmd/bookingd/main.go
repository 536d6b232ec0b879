package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// rootOptions carries what every subcommand needs to load settings.
type rootOptions struct {
	configFile string
	envFile    string
	lookupEnv  func(string) (string, bool)
	stdout     io.Writer
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	if opts.lookupEnv == nil {
		opts.lookupEnv = os.LookupEnv
	}
	if opts.stdout == nil {
		opts.stdout = os.Stdout
	}

	root := &cobra.Command{
		Use:           "bookingd",
		Short:         "Multi-tenant booking engine for time-slot reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file (default .env when present)")
	root.SetOut(opts.stdout)

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newTenantCmd(opts))
	root.AddCommand(newUserCmd(opts))
	root.AddCommand(newSlotsCmd(opts))
	root.AddCommand(newKeysCmd(opts))
	root.AddCommand(newVersionCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&rootOptions{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

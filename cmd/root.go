package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/seat-scheduler/internal/app"
	"github.com/example/seat-scheduler/internal/config"
	"github.com/example/seat-scheduler/internal/logging"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "seatsched",
		Short:        "Books study-room seats every evening and checks in, cancels or checks out on schedule",
		SilenceUsage: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newPrefCmd())
	root.AddCommand(newJobCmd())
	root.AddCommand(newBookCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newSeatMapCmd())
	root.AddCommand(newPingCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

// openRuntime is the setup shared by every command that talks to the
// database. Callers must Close the runtime.
func openRuntime(ctx context.Context, migrateUp bool) (*app.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, migrateUp)
}

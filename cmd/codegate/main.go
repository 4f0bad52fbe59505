package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/codegate/internal/app"
	"github.com/dharsanguruparan/codegate/internal/config"
	"github.com/dharsanguruparan/codegate/internal/logger"
)

var databaseURL string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "codegate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.LoadDatabase()
	cmd := &cobra.Command{
		Use:   "codegate",
		Short: "CodeGate operations CLI",
		Long: `CodeGate CLI applies database migrations, manages upload grants, inspects and
drains pending deletions, and runs the bot or worker binaries during development.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.Init(cfg.LogLevel, cfg.LogFormat)
		},
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string")
	cmd.AddCommand(
		newMigrateCmd(),
		newGrantCmd(),
		newRevokeCmd(),
		newUploadersCmd(),
		newStatsCmd(),
		newSweepCmd(),
		newRecoverCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

// withStores opens the database for the duration of fn.
func withStores(ctx context.Context, migrate bool, fn func(*app.Stores) error) error {
	stores, err := app.Open(ctx, databaseURL, migrate)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(stores)
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual Go binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("bot", "./cmd/server"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := append([]string{"run", path}, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}

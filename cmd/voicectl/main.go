// Command voicectl records expenses from the local microphone and manages
// tokens and the expense archive from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"voicespese/internal/amqp"
	"voicespese/internal/auth"
	"voicespese/internal/cli"
	"voicespese/internal/config"
	"voicespese/internal/core"
	vlog "voicespese/internal/log"
	"voicespese/internal/services"
	"voicespese/internal/storage"
)

// app holds what every subcommand needs; PersistentPreRunE fills it.
type app struct {
	verbose bool

	cfg      *config.Config
	logger   *slog.Logger
	repo     *storage.SQLiteRepository
	amqp     *amqp.Client
	expenses *services.ExpenseService
	tokens   *auth.TokenAuthenticator
}

func (a *app) open(*cobra.Command, []string) error {
	a.cfg, a.logger = cli.Bootstrap()
	level := slog.LevelWarn
	if a.verbose {
		level = vlog.ParseLevel(a.cfg.LogLevel)
	}
	// Status lines own stdout.
	a.logger = vlog.Setup(vlog.Config{Level: level, Output: os.Stderr})

	a.repo = cli.InitSQLite(a.logger, a.cfg.SQLiteDBPath)
	var pub services.Publisher
	pub, a.amqp = cli.NewPublisher(a.cfg, a.logger)
	a.expenses = cli.NewExpenseService(a.repo, pub, a.cfg)
	a.tokens = auth.NewTokenAuthenticator(a.repo)
	return nil
}

func (a *app) close(*cobra.Command, []string) {
	if a.amqp != nil {
		_ = a.amqp.Close()
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "voicectl",
		Short:             "Speak an expense, get it saved",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.open,
		PersistentPostRun: a.close,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "V", false, "log at the configured LOG_LEVEL instead of warn")

	root.AddCommand(newRecordCmd(a))
	root.AddCommand(newTokenCmd(a))
	root.AddCommand(newExpensesCmd(a))
	return root
}

func main() {
	ctx, stop := cli.SignalContext(slog.Default())
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(describe(err)))
		os.Exit(1)
	}
}

// describe prefers the user-facing text for classified failures.
func describe(err error) string {
	if errors.Is(err, context.Canceled) {
		return "Cancelled"
	}
	if core.KindOf(err) == core.KindUnexpected {
		return err.Error()
	}
	return core.UserMessage(err)
}

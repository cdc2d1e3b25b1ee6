package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"voicespese/internal/core"
)

func newExpensesCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List, archive and restore saved expenses",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "owner of the expenses")
	_ = cmd.MarkPersistentFlagRequired("user")

	var archived bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent expenses with per-category totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.expenses.List(cmd.Context(), user, archived, limit)
			if err != nil {
				return err
			}
			printExpenses(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	list.Flags().BoolVar(&archived, "archived", false, "include archived expenses")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	cmd.AddCommand(list, archiveCmd(a, &user, true), archiveCmd(a, &user, false))
	return cmd
}

func archiveCmd(a *app, user *string, archive bool) *cobra.Command {
	use, verb := "restore <id>", "restored"
	if archive {
		use, verb = "archive <id>", "archived"
	}
	return &cobra.Command{
		Use:   use,
		Short: "Mark an expense " + verb,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid expense id %q", args[0])
			}
			e, err := a.expenses.Archive(cmd.Context(), *user, id, archive)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), savedStyle.Render(fmt.Sprintf("#%d %s", e.ID, verb)))
			return nil
		},
	}
}

func printExpenses(w io.Writer, rows []core.PersistedExpense) {
	for _, e := range rows {
		line := dimStyle.Render(fmt.Sprintf("#%-5d %s", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"))) +
			amountStyle.Render(e.Amount.String()) + categoryStyle.Render(e.Category.String()) + "  " + e.Description
		if e.Archived {
			line = dimStyle.Render(line + "  [archived]")
		}
		fmt.Fprintln(w, line)
	}

	s := core.Summarize(rows)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("total %s across %d expenses", s.Total, s.Count)))
	for _, c := range s.ByCategory {
		fmt.Fprintln(w, amountStyle.Render(c.Amount.String())+categoryStyle.Render(c.Category.String())+dimStyle.Render(fmt.Sprintf("  %d", c.Count)))
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and revoke API tokens",
	}

	var user, label string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a user; it is printed once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.tokens.Issue(cmd.Context(), user, label)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&user, "user", "", "user id the token authenticates as")
	issue.Flags().StringVar(&label, "label", "", "free-form note stored with the token")
	_ = issue.MarkFlagRequired("user")

	revoke := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.tokens.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), savedStyle.Render("revoked"))
			return nil
		},
	}

	cmd.AddCommand(issue, revoke)
	return cmd
}

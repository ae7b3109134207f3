package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pearlgen/internal/sessions"
)

func newAccountsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and check stored accounts",
	}
	cmd.AddCommand(newAccountsListCmd(configPath), newAccountsCheckCmd(configPath))
	return cmd
}

func newAccountsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			all, err := app.store.All()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("No accounts stored.")
				return nil
			}
			for _, account := range all {
				fmt.Printf("%-40s %-8s %s\n",
					account.Email, account.Status, account.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newAccountsCheckCmd(configPath *string) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify stored sessions still authenticate",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			checker := sessions.NewHealthChecker(
				app.store,
				app.cfg.SignupConf.BaseURL,
				app.cfg.SignupConf.Locale,
				workers,
			)
			result, err := checker.CheckAll(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Checked %d sessions: %d alive, %d expired, %d errors\n",
				result.Checked, result.Alive, result.Expired, result.Errors)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 5, "parallel session checks")
	return cmd
}

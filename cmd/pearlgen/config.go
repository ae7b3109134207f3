package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pearlgen/internal/shared/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config template to fill in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(*configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s. Fill it in before running generate.\n", *configPath)
			return nil
		},
	})

	return cmd
}

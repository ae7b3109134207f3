package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pearlgen/internal/browser"
	"pearlgen/internal/sessions"
	"pearlgen/internal/shared/logger"
)

func newOpenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "open <email>",
		Short: "Open a stored account session in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configPath)
			if err != nil {
				return err
			}

			engine := browser.NewCDPEngine(app.cfg.BrowserConf)
			opener := sessions.NewOpener(engine, app.store, app.cfg.SignupConf.BaseURL)

			ctx := context.Background()
			handle, err := opener.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer handle.Close()

			fmt.Print("Press enter to close the session...")
			bufio.NewReader(os.Stdin).ReadString('\n')

			// Keep the freshest cookies on disk for the next reuse.
			if err := handle.Refresh(ctx); err != nil {
				logger.WithComponent("CLI").Warn().Err(err).Msg("Failed to refresh stored session cookies.")
			}
			return nil
		},
	}
}

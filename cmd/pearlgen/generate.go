package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pearlgen/internal/accounts"
	"pearlgen/internal/browser"
	"pearlgen/internal/identity"
	"pearlgen/internal/notify"
	"pearlgen/internal/orchestrator"
	"pearlgen/internal/otp"
	"pearlgen/internal/proxypool"
	"pearlgen/internal/shared/logger"
	"pearlgen/internal/signup"
)

func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		emailFile string
		proxyFile string
		password  string
		amount    int
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Provision accounts from an email list and a proxy list",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				app.cfg.PoolConf.Workers = workers
			}
			return runGenerate(app, emailFile, proxyFile, password, amount)
		},
	}

	cmd.Flags().StringVar(&emailFile, "emails", "", "email list file, one address per line")
	cmd.Flags().StringVar(&proxyFile, "proxies", "", "proxy list file, [socks5://]host:port:user:pass per line")
	cmd.Flags().StringVar(&password, "password", "", "password for the generated accounts")
	cmd.Flags().IntVar(&amount, "amount", 0, "number of accounts to generate (0 = all emails)")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count override")
	cmd.MarkFlagRequired("emails")
	cmd.MarkFlagRequired("proxies")
	cmd.MarkFlagRequired("password")

	return cmd
}

func runGenerate(app *app, emailFile, proxyFile, password string, amount int) error {
	cfg := app.cfg
	l := logger.WithComponent("CLI")

	emails, err := identity.LoadEmails(emailFile)
	if err != nil {
		return err
	}
	proxies, lineErrs, err := proxypool.LoadFile(proxyFile)
	if err != nil {
		return err
	}
	for _, lineErr := range lineErrs {
		l.Warn().Err(lineErr).Msg("Skipping malformed proxy line.")
	}

	// Never reuse resources already bound to a stored account.
	usedEmails, err := accounts.UsedEmails(app.store)
	if err != nil {
		return err
	}
	usedProxies, err := accounts.UsedProxies(app.store)
	if err != nil {
		return err
	}
	emails = identity.FilterUsed(emails, usedEmails)
	kept := proxies[:0]
	for _, p := range proxies {
		if !usedProxies[p.Line()] {
			kept = append(kept, p)
		}
	}
	proxies = kept

	if len(emails) == 0 {
		return fmt.Errorf("no unused emails left in %s", emailFile)
	}
	if len(proxies) == 0 {
		return fmt.Errorf("no unused proxies left in %s", proxyFile)
	}

	// Spread proxies and mailbox domains across the run.
	rand.Shuffle(len(emails), func(i, j int) { emails[i], emails[j] = emails[j], emails[i] })
	rand.Shuffle(len(proxies), func(i, j int) { proxies[i], proxies[j] = proxies[j], proxies[i] })

	feed := identity.NewFeed(identity.Build(emails, password, amount))
	pool := proxypool.NewPool(proxies, cfg.PoolConf.ProxyFailureThreshold)
	checker := proxypool.NewChecker(
		targetHost(cfg.SignupConf.BaseURL),
		time.Duration(cfg.PoolConf.ProxyCheckSeconds)*time.Second,
	)

	channels := []otp.Channel{otp.NewMailboxChannel(cfg.IMAPConf)}
	if cfg.SMSConf.APIKey != "" {
		channels = append(channels, otp.NewSMSChannel(otp.NewSMSClient(cfg.SMSConf)))
	} else {
		l.Info().Msg("No SMS API key configured, running with the mailbox channel only.")
	}
	resolver := otp.NewResolver(
		channels,
		time.Duration(cfg.OTPConf.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.OTPConf.DeadlineSeconds)*time.Second,
	)

	engine := browser.NewCDPEngine(cfg.BrowserConf)
	driver := signup.NewDriver(engine, resolver, cfg.SignupConf.BaseURL)

	orch := orchestrator.New(feed, pool, driver, app.store, orchestrator.Options{
		Workers:    cfg.PoolConf.Workers,
		RetryBound: cfg.PoolConf.RetryBound,
		LeaseWait:  time.Duration(cfg.PoolConf.LeaseWaitSeconds) * time.Second,
		Checker:    checker,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := orch.Run(ctx)

	fmt.Printf("\nRun finished: %d succeeded, %d permanently failed, %d interrupted\n",
		report.Succeeded, report.PermanentlyFailed, report.InProgressAtShutdown)
	for reason, count := range report.FailureReasons {
		fmt.Printf("  %-20s %d\n", reason, count)
	}

	// Shutdown signal must not suppress the report delivery.
	notify.NewWebhook(cfg.NotifyConf.WebhookURL).RunReport(context.Background(), report)
	return nil
}

// targetHost extracts the host from the signup base URL for the proxy
// liveness probe.
func targetHost(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Host
}

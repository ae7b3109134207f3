package sessions

import (
	"context"
	"fmt"
	"strings"

	"pearlgen/internal/accounts"
	"pearlgen/internal/browser"
	"pearlgen/internal/proxypool"
	"pearlgen/internal/shared/logger"
)

// Opener rebuilds a live browser session from a stored account artifact.
type Opener struct {
	engine  browser.Engine
	store   accounts.Store
	baseURL string
}

// NewOpener builds an opener over the engine and store.
func NewOpener(engine browser.Engine, store accounts.Store, baseURL string) *Opener {
	return &Opener{engine: engine, store: store, baseURL: strings.TrimRight(baseURL, "/")}
}

// Handle is an open account browser session. Close it when done; Refresh
// persists the session's current cookies back to the store first.
type Handle struct {
	session browser.Session
	store   accounts.Store
	account *accounts.Account
}

// Open restores the stored session for an email into a fresh browser page
// bound to the account's original proxy, and navigates to the target.
func (o *Opener) Open(ctx context.Context, email string) (*Handle, error) {
	account, err := o.store.Find(email)
	if err != nil {
		return nil, err
	}
	artifact, err := browser.ParseArtifact(account.Session)
	if err != nil {
		return nil, err
	}
	proxy, err := proxypool.ParseLine(account.Proxy)
	if err != nil {
		return nil, fmt.Errorf("stored proxy for %s: %w", email, err)
	}

	session, err := o.engine.Open(ctx, proxy)
	if err != nil {
		return nil, err
	}
	if err := session.Restore(ctx, artifact); err != nil {
		session.Close()
		return nil, err
	}
	if _, err := session.Submit(ctx, browser.Form{URL: o.baseURL + "/"}); err != nil {
		session.Close()
		return nil, err
	}

	logger.WithComponent("Sessions/Opener").Info().Str("email", email).Msg("Account session opened.")
	return &Handle{session: session, store: o.store, account: account}, nil
}

// Refresh captures the session's current cookies and saves them back to
// the account record, so the stored artifact stays usable.
func (h *Handle) Refresh(ctx context.Context) error {
	artifact, err := h.session.Capture(ctx)
	if err != nil {
		return err
	}
	h.account.Session = artifact
	return h.store.Save(h.account)
}

// Close shuts down the browser session.
func (h *Handle) Close() error {
	return h.session.Close()
}

// Package sessions holds the session-reuse consumers: they read the
// account store, rebuild authenticated sessions from stored artifacts,
// and write back a failed status when a session no longer authenticates.
package sessions

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"pearlgen/internal/accounts"
	"pearlgen/internal/browser"
	"pearlgen/internal/proxypool"
	"pearlgen/internal/shared/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0"

// The account greeting on the target's home page addresses guests with a
// sign-in prompt; an authenticated session shows the account name instead.
const (
	greetingSelector = "#nav-link-accountList-nav-line-1"
	guestMarker      = "vous"
)

// HealthResult summarizes one store-wide session check.
type HealthResult struct {
	Checked int
	Alive   int
	Expired int
	Errors  int
}

// HealthChecker verifies that stored sessions still authenticate against
// the target, over plain HTTP with the stored cookies and proxy.
type HealthChecker struct {
	store   accounts.Store
	baseURL string
	locale  string
	timeout time.Duration
	workers int
}

// NewHealthChecker builds a checker over the store.
func NewHealthChecker(store accounts.Store, baseURL, locale string, workers int) *HealthChecker {
	if workers <= 0 {
		workers = 5
	}
	return &HealthChecker{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		locale:  locale,
		timeout: 30 * time.Second,
		workers: workers,
	}
}

// CheckAll verifies every stored active account in parallel. Accounts whose
// sessions no longer authenticate are marked failed in the store.
func (c *HealthChecker) CheckAll(ctx context.Context) (HealthResult, error) {
	all, err := c.store.All()
	if err != nil {
		return HealthResult{}, err
	}

	l := logger.WithComponent("Sessions/Health")
	var mu sync.Mutex
	var result HealthResult

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for _, account := range all {
		if account.Status != accounts.StatusActive {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(account *accounts.Account) {
			defer wg.Done()
			defer func() { <-sem }()

			alive, err := c.Check(ctx, account)
			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			switch {
			case err != nil:
				result.Errors++
				l.Warn().Str("email", account.Email).Err(err).Msg("Session check errored.")
			case alive:
				result.Alive++
			default:
				result.Expired++
			}
		}(account)
	}
	wg.Wait()

	l.Info().
		Int("checked", result.Checked).
		Int("alive", result.Alive).
		Int("expired", result.Expired).
		Msg("Session health check finished.")
	return result, nil
}

// Check loads the target home page with the account's session and reports
// whether it is still authenticated. An expired session is recorded in the
// store as an external status change.
func (c *HealthChecker) Check(ctx context.Context, account *accounts.Account) (bool, error) {
	client, err := c.clientFor(account)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", userAgent)
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("home page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return false, err
	}

	greeting := doc.Find(greetingSelector).First()
	authenticated := greeting.Length() > 0 &&
		!strings.Contains(strings.ToLower(greeting.Text()), guestMarker)
	if !authenticated {
		if err := c.store.SetStatus(account.Email, accounts.StatusFailed); err != nil {
			return false, err
		}
	}
	return authenticated, nil
}

// clientFor builds an HTTP client carrying the account's cookies and
// bound to its stored proxy.
func (c *HealthChecker) clientFor(account *accounts.Account) (*http.Client, error) {
	artifact, err := browser.ParseArtifact(account.Session)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(base, cookiesFor(artifact))

	transport := &http.Transport{}
	if account.Proxy != "" {
		proxy, err := proxypool.ParseLine(account.Proxy)
		if err != nil {
			return nil, fmt.Errorf("stored proxy for %s: %w", account.Email, err)
		}
		transport.Proxy = http.ProxyURL(proxy.URL())
	}

	return &http.Client{
		Jar:       jar,
		Transport: transport,
		Timeout:   c.timeout,
	}, nil
}

// cookiesFor converts artifact cookies into http cookies.
func cookiesFor(artifact *browser.Artifact) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(artifact.Cookies))
	for _, c := range artifact.Cookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		cookies = append(cookies, cookie)
	}
	return cookies
}

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pearlgen/internal/proxypool"
	"pearlgen/internal/shared/logger"
	"pearlgen/internal/shared/types"
)

// CDPEngine opens sessions against a DevTools-compatible automation
// service. The proxy binding is passed as a query parameter; everything
// past the websocket is the engine's business.
type CDPEngine struct {
	endpoint string
	timeout  time.Duration
}

// NewCDPEngine builds the engine from the [browser] config section.
func NewCDPEngine(cfg types.BrowserConf) *CDPEngine {
	return &CDPEngine{
		endpoint: strings.TrimRight(cfg.DevtoolsURL, "/"),
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Open dials a new browser session bound to the given proxy.
func (e *CDPEngine) Open(ctx context.Context, proxy proxypool.Proxy) (Session, error) {
	wsURL := fmt.Sprintf("%s/session?proxy=%s", e.endpoint, url.QueryEscape(proxy.URL().String()))

	dialCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rpc, err := dialRPC(dialCtx, wsURL)
	if err != nil {
		return nil, err
	}
	return &cdpSession{rpc: rpc, timeout: e.timeout}, nil
}

type cdpSession struct {
	rpc     *rpcClient
	timeout time.Duration
}

// Submit navigates if the form carries a URL, fills every field, clicks the
// submit control, then classifies the resulting page against the probes.
func (s *cdpSession) Submit(ctx context.Context, form Form) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if form.URL != "" {
		if err := s.navigate(ctx, form.URL); err != nil {
			return OutcomeUnknown, err
		}
	}

	for selector, value := range form.Fields {
		if err := s.fill(ctx, selector, value); err != nil {
			return OutcomeUnknown, err
		}
	}

	if form.SubmitSelector != "" {
		if err := s.click(ctx, form.SubmitSelector); err != nil {
			return OutcomeUnknown, err
		}
	}

	if len(form.Probes) == 0 {
		return OutcomeAccepted, nil
	}
	return s.classify(ctx, form.Probes)
}

// Capture serializes the session cookies as the reusable artifact.
func (s *cdpSession) Capture(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result struct {
		Cookies []Cookie `json:"cookies"`
	}
	if err := s.rpc.call(ctx, "Network.getCookies", nil, &result); err != nil {
		return nil, err
	}
	artifact := &Artifact{Cookies: result.Cookies}
	return artifact.Marshal()
}

// Restore injects a stored artifact's cookies into the session.
func (s *cdpSession) Restore(ctx context.Context, artifact *Artifact) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := map[string]interface{}{"cookies": artifact.Cookies}
	return s.rpc.call(ctx, "Network.setCookies", params, nil)
}

func (s *cdpSession) Close() error {
	return s.rpc.close()
}

func (s *cdpSession) navigate(ctx context.Context, pageURL string) error {
	params := map[string]string{"url": pageURL}
	var result struct {
		ErrorText string `json:"errorText"`
	}
	if err := s.rpc.call(ctx, "Page.navigate", params, &result); err != nil {
		return err
	}
	if result.ErrorText != "" {
		return fmt.Errorf("navigation to %s failed: %s", pageURL, result.ErrorText)
	}
	// Let the page settle; the engine reports navigation start, not load end.
	return s.waitQuiet(ctx)
}

// fill sets a field value and fires an input event, so client-side
// validation sees the change.
func (s *cdpSession) fill(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.focus();
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, selector, value)

	ok, err := s.evalBool(ctx, expr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("field %s not found on page", selector)
	}
	return nil
}

func (s *cdpSession) click(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, selector)

	ok, err := s.evalBool(ctx, expr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("submit control %s not found on page", selector)
	}
	return s.waitQuiet(ctx)
}

// classify re-checks the probes until one matches or the context expires.
// Pages render asynchronously after a submit, so a single check is not
// enough.
func (s *cdpSession) classify(ctx context.Context, probes []Probe) (Outcome, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		for _, probe := range probes {
			present, err := s.evalBool(ctx, fmt.Sprintf("!!document.querySelector(%q)", probe.Selector))
			if err != nil {
				return OutcomeUnknown, err
			}
			if present {
				return probe.Outcome, nil
			}
		}

		select {
		case <-ctx.Done():
			logger.WithComponent("Browser").Debug().Msg("No page probe matched before timeout.")
			return OutcomeUnknown, nil
		case <-ticker.C:
		}
	}
}

func (s *cdpSession) evalBool(ctx context.Context, expr string) (bool, error) {
	params := map[string]interface{}{
		"expression":    expr,
		"returnByValue": true,
	}
	var result struct {
		Result struct {
			Value bool `json:"value"`
		} `json:"result"`
	}
	if err := s.rpc.call(ctx, "Runtime.evaluate", params, &result); err != nil {
		return false, err
	}
	return result.Result.Value, nil
}

// waitQuiet polls document.readyState until the page reports complete.
func (s *cdpSession) waitQuiet(ctx context.Context) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		ready, err := s.evalBool(ctx, `document.readyState === "complete"`)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

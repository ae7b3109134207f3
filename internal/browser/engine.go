// Package browser is the boundary to the browser-automation engine. The
// engine is a black box reached over a DevTools-style websocket: it opens
// a page bound to a proxy, submits form fields, reports the resulting page
// shape, and yields a serializable session artifact.
package browser

import (
	"context"
	"encoding/json"

	"pearlgen/internal/proxypool"
)

// Outcome classifies the page state after a form submission.
type Outcome int

const (
	// OutcomeUnknown means no probe matched; the page has an unexpected shape.
	OutcomeUnknown Outcome = iota
	// OutcomeAccepted means the submission went through and a follow-up page loaded.
	OutcomeAccepted
	// OutcomeRejected means the service rejected the submitted input.
	OutcomeRejected
	// OutcomeVerificationRequired means the service is asking for a code.
	OutcomeVerificationRequired
	// OutcomeAuthenticated means the page shows an authenticated state.
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeVerificationRequired:
		return "verification-required"
	case OutcomeAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Probe maps a page marker (CSS selector) to the outcome it indicates.
// Probes are checked in order; the first match wins.
type Probe struct {
	Selector string
	Outcome  Outcome
}

// Form is one submission step: optionally navigate, fill fields by
// selector, click the submit control, then classify the resulting page.
type Form struct {
	URL            string
	Fields         map[string]string
	SubmitSelector string
	Probes         []Probe
}

// Session is one live browser page bound to a proxy.
type Session interface {
	// Submit fills and submits a form, returning the classified outcome.
	Submit(ctx context.Context, form Form) (Outcome, error)
	// Capture serializes the authenticated session state.
	Capture(ctx context.Context) (json.RawMessage, error)
	// Restore injects a previously captured artifact into the session.
	Restore(ctx context.Context, artifact *Artifact) error
	Close() error
}

// Engine opens browser sessions.
type Engine interface {
	Open(ctx context.Context, proxy proxypool.Proxy) (Session, error)
}

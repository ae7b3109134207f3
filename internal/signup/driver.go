package signup

import (
	"context"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"pearlgen/internal/browser"
	"pearlgen/internal/identity"
	"pearlgen/internal/otp"
	"pearlgen/internal/proxypool"
	"pearlgen/internal/shared/logger"
)

// CodeResolver resolves one verification code per identity.
type CodeResolver interface {
	Resolve(ctx context.Context, email string) (otp.Code, error)
}

// Driver runs one identity through registration and verification on a
// leased proxy. It performs no retries; retry policy belongs to the
// orchestrator, this is a one-shot state machine.
type Driver struct {
	engine   browser.Engine
	resolver CodeResolver
	baseURL  string
}

// NewDriver wires the driver to its browser engine and code resolver.
func NewDriver(engine browser.Engine, resolver CodeResolver, baseURL string) *Driver {
	return &Driver{
		engine:   engine,
		resolver: resolver,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Run drives one signup to a terminal state.
func (d *Driver) Run(ctx context.Context, id identity.Identity, proxy proxypool.Proxy) Result {
	l := logger.WithComponent("SignupDriver").With().Str("email", id.Email).Logger()
	l.Debug().Str("state", string(StateStarted)).Str("proxy", proxy.ID()).Msg("Signup started.")

	session, err := d.engine.Open(ctx, proxy)
	if err != nil {
		l.Warn().Err(err).Msg("Failed to open browser session through proxy.")
		return failed(ReasonProxyError)
	}
	defer session.Close()

	// Started -> FormSubmitted
	outcome, err := session.Submit(ctx, browser.Form{
		URL: d.baseURL + registerPath,
		Fields: map[string]string{
			fieldCustomerName:  gofakeit.Name(),
			fieldEmail:         id.Email,
			fieldPassword:      id.Password,
			fieldPasswordCheck: id.Password,
		},
		SubmitSelector: buttonContinue,
		Probes:         registrationProbes,
	})
	if err != nil {
		// The registration round trip is the first traffic through the
		// leased proxy; a transport error here points at the proxy.
		l.Warn().Err(err).Msg("Registration submission failed.")
		return failed(ReasonProxyError)
	}

	switch outcome {
	case browser.OutcomeRejected:
		l.Warn().Str("state", string(StateFailed)).Msg("Registration form rejected.")
		return failed(ReasonFormRejected)
	case browser.OutcomeVerificationRequired:
		l.Debug().Str("state", string(StateAwaitingCode)).Msg("Verification step required.")
	case browser.OutcomeAuthenticated:
		// The service skipped verification outright.
		return d.capture(ctx, session, l)
	default:
		l.Warn().Str("outcome", outcome.String()).Msg("Unexpected page after registration.")
		return failed(ReasonUnexpectedResponse)
	}

	// AwaitingCode -> CodeVerified
	code, err := d.resolver.Resolve(ctx, id.Email)
	if err != nil {
		l.Warn().Err(err).Str("state", string(StateFailed)).Msg("No verification code obtained.")
		return failed(ReasonOTPTimeout)
	}

	outcome, err = session.Submit(ctx, browser.Form{
		Fields:         map[string]string{fieldCode: code.Value},
		SubmitSelector: buttonSubmitCode,
		Probes:         verificationProbes,
	})
	if err != nil {
		l.Warn().Err(err).Msg("Code submission failed.")
		return failed(ReasonUnexpectedResponse)
	}

	switch outcome {
	case browser.OutcomeAuthenticated:
		l.Debug().Str("state", string(StateCodeVerified)).Str("channel", code.Channel).Msg("Verification code accepted.")
	case browser.OutcomeRejected, browser.OutcomeVerificationRequired:
		l.Warn().Str("channel", code.Channel).Msg("Verification code rejected by the service.")
		return failed(ReasonOTPRejected)
	default:
		return failed(ReasonUnexpectedResponse)
	}

	// CodeVerified -> SessionEstablished
	return d.capture(ctx, session, l)
}

func (d *Driver) capture(ctx context.Context, session browser.Session, l zerolog.Logger) Result {
	artifact, err := session.Capture(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("Failed to capture session artifact.")
		return failed(ReasonUnexpectedResponse)
	}
	l.Info().Str("state", string(StateSessionEstablished)).Msg("Session established.")
	return established(artifact)
}

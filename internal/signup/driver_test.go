package signup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pearlgen/internal/browser"
	"pearlgen/internal/identity"
	"pearlgen/internal/otp"
	"pearlgen/internal/proxypool"
)

type fakeEngine struct {
	session *fakeSession
	openErr error
}

func (e *fakeEngine) Open(ctx context.Context, proxy proxypool.Proxy) (browser.Session, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.session, nil
}

// fakeSession replays one scripted outcome per Submit call and records the
// submitted forms for inspection.
type fakeSession struct {
	outcomes   []browser.Outcome
	submitErrs []error
	artifact   json.RawMessage
	captureErr error

	forms  []browser.Form
	closed bool
}

func (s *fakeSession) Submit(ctx context.Context, form browser.Form) (browser.Outcome, error) {
	call := len(s.forms)
	s.forms = append(s.forms, form)
	if call < len(s.submitErrs) && s.submitErrs[call] != nil {
		return browser.OutcomeUnknown, s.submitErrs[call]
	}
	if call >= len(s.outcomes) {
		return browser.OutcomeUnknown, nil
	}
	return s.outcomes[call], nil
}

func (s *fakeSession) Capture(ctx context.Context) (json.RawMessage, error) {
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	return s.artifact, nil
}

func (s *fakeSession) Restore(ctx context.Context, artifact *browser.Artifact) error { return nil }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeResolver struct {
	code otp.Code
	err  error

	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, email string) (otp.Code, error) {
	r.calls++
	return r.code, r.err
}

var (
	testIdentity = identity.Identity{Email: "alice@example.com", Password: "pw123456"}
	testProxy    = proxypool.Proxy{Host: "10.0.0.1", Port: 8080, Username: "u", Password: "p"}
)

func TestDriver_HappyPath(t *testing.T) {
	artifact := json.RawMessage(`{"cookies":[{"name":"session-id","value":"abc"}]}`)
	session := &fakeSession{
		outcomes: []browser.Outcome{browser.OutcomeVerificationRequired, browser.OutcomeAuthenticated},
		artifact: artifact,
	}
	resolver := &fakeResolver{code: otp.Code{Value: "123456", Channel: otp.ChannelMailbox}}
	driver := NewDriver(&fakeEngine{session: session}, resolver, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateSessionEstablished, result.State)
	assert.Equal(t, ReasonNone, result.Reason)
	assert.JSONEq(t, string(artifact), string(result.Artifact))
	assert.True(t, session.closed)
	assert.Equal(t, 1, resolver.calls)

	require.Len(t, session.forms, 2)
	registration := session.forms[0]
	assert.Equal(t, "https://shop.test"+registerPath, registration.URL)
	assert.Equal(t, testIdentity.Email, registration.Fields[fieldEmail])
	assert.Equal(t, testIdentity.Password, registration.Fields[fieldPassword])
	assert.Equal(t, testIdentity.Password, registration.Fields[fieldPasswordCheck])
	assert.NotEmpty(t, registration.Fields[fieldCustomerName])

	verification := session.forms[1]
	assert.Equal(t, "123456", verification.Fields[fieldCode])
}

func TestDriver_SkipsVerificationWhenAlreadyAuthenticated(t *testing.T) {
	session := &fakeSession{
		outcomes: []browser.Outcome{browser.OutcomeAuthenticated},
		artifact: json.RawMessage(`{"cookies":[]}`),
	}
	resolver := &fakeResolver{}
	driver := NewDriver(&fakeEngine{session: session}, resolver, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateSessionEstablished, result.State)
	assert.Equal(t, 0, resolver.calls)
	assert.Len(t, session.forms, 1)
}

func TestDriver_OpenFailure(t *testing.T) {
	driver := NewDriver(&fakeEngine{openErr: errors.New("proxy refused")}, &fakeResolver{}, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonProxyError, result.Reason)
}

func TestDriver_RegistrationTransportError(t *testing.T) {
	session := &fakeSession{submitErrs: []error{errors.New("tunnel reset")}}
	driver := NewDriver(&fakeEngine{session: session}, &fakeResolver{}, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonProxyError, result.Reason)
	assert.True(t, session.closed)
}

func TestDriver_FormRejected(t *testing.T) {
	session := &fakeSession{outcomes: []browser.Outcome{browser.OutcomeRejected}}
	resolver := &fakeResolver{}
	driver := NewDriver(&fakeEngine{session: session}, resolver, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonFormRejected, result.Reason)
	assert.Equal(t, 0, resolver.calls)
}

func TestDriver_UnexpectedPageAfterRegistration(t *testing.T) {
	session := &fakeSession{outcomes: []browser.Outcome{browser.OutcomeUnknown}}
	driver := NewDriver(&fakeEngine{session: session}, &fakeResolver{}, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonUnexpectedResponse, result.Reason)
}

func TestDriver_OTPTimeout(t *testing.T) {
	session := &fakeSession{outcomes: []browser.Outcome{browser.OutcomeVerificationRequired}}
	resolver := &fakeResolver{err: otp.ErrTimeout}
	driver := NewDriver(&fakeEngine{session: session}, resolver, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonOTPTimeout, result.Reason)
	assert.Len(t, session.forms, 1)
}

func TestDriver_OTPRejected(t *testing.T) {
	session := &fakeSession{
		outcomes: []browser.Outcome{browser.OutcomeVerificationRequired, browser.OutcomeRejected},
	}
	resolver := &fakeResolver{code: otp.Code{Value: "000000", Channel: otp.ChannelSMS}}
	driver := NewDriver(&fakeEngine{session: session}, resolver, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonOTPRejected, result.Reason)
}

func TestDriver_CaptureFailure(t *testing.T) {
	session := &fakeSession{
		outcomes:   []browser.Outcome{browser.OutcomeVerificationRequired, browser.OutcomeAuthenticated},
		captureErr: errors.New("devtools gone"),
	}
	resolver := &fakeResolver{code: otp.Code{Value: "123456", Channel: otp.ChannelMailbox}}
	driver := NewDriver(&fakeEngine{session: session}, resolver, "https://shop.test")

	result := driver.Run(context.Background(), testIdentity, testProxy)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, ReasonUnexpectedResponse, result.Reason)
}

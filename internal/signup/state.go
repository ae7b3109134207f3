package signup

import "encoding/json"

// State is one step of the per-task signup sequence.
type State string

const (
	StateStarted            State = "started"
	StateFormSubmitted      State = "form-submitted"
	StateAwaitingCode       State = "awaiting-code"
	StateCodeVerified       State = "code-verified"
	StateSessionEstablished State = "session-established"
	StateFailed             State = "failed"
)

// FailureReason says why a task reached StateFailed.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonProxyError         FailureReason = "proxy-error"
	ReasonFormRejected       FailureReason = "form-rejected"
	ReasonOTPTimeout         FailureReason = "otp-timeout"
	ReasonOTPRejected        FailureReason = "otp-rejected"
	ReasonUnexpectedResponse FailureReason = "unexpected-response"
)

// Result is the terminal outcome of one signup run: either
// StateSessionEstablished with the captured artifact, or StateFailed with
// a reason.
type Result struct {
	State    State
	Reason   FailureReason
	Artifact json.RawMessage
}

func established(artifact json.RawMessage) Result {
	return Result{State: StateSessionEstablished, Artifact: artifact}
}

func failed(reason FailureReason) Result {
	return Result{State: StateFailed, Reason: reason}
}

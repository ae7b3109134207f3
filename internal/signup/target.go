package signup

import "pearlgen/internal/browser"

// Page map of the external signup target. Selectors follow the target's
// registration and verification pages; everything else in the driver is
// target-agnostic.
const (
	registerPath = "/ap/register"

	fieldCustomerName  = "#ap_customer_name"
	fieldEmail         = "#ap_email"
	fieldPassword      = "#ap_password"
	fieldPasswordCheck = "#ap_password_check"
	buttonContinue     = "#continue"

	fieldCode        = "#cvf-input-code"
	buttonSubmitCode = "#cvf-submit-otp-button"

	markerFormError     = ".a-alert-error"
	markerCodeError     = ".cvf-widget-alert-message"
	markerAuthenticated = "#nav-link-accountList"
)

// registrationProbes classify the page after the registration form.
var registrationProbes = []browser.Probe{
	{Selector: markerFormError, Outcome: browser.OutcomeRejected},
	{Selector: fieldCode, Outcome: browser.OutcomeVerificationRequired},
	{Selector: markerAuthenticated, Outcome: browser.OutcomeAuthenticated},
}

// verificationProbes classify the page after submitting the code.
var verificationProbes = []browser.Probe{
	{Selector: markerCodeError, Outcome: browser.OutcomeRejected},
	{Selector: markerAuthenticated, Outcome: browser.OutcomeAuthenticated},
	{Selector: fieldCode, Outcome: browser.OutcomeVerificationRequired},
}

package tnedistrict

import "strings"

// Classify maps the rendered body text to an outcome. Decision order
// matters: multiple keywords can co-occur (a rejected application's
// remarks may still mention "approved" in unrelated boilerplate), so the
// first match wins. Pure function of the text and the captcha flag.
func Classify(bodyText string, captcha bool) Outcome {
	lowered := strings.ToLower(bodyText)

	switch {
	case captcha || strings.Contains(lowered, "captcha"):
		return OutcomeCaptchaRequired
	case strings.Contains(lowered, "approved") &&
		(strings.Contains(lowered, "application") || strings.Contains(lowered, "certificate")):
		return OutcomeApproved
	case strings.Contains(lowered, "rejected"):
		return OutcomeRejected
	case strings.Contains(lowered, "pending") || strings.Contains(lowered, "in progress"):
		return OutcomePending
	case strings.Contains(lowered, "no record") || strings.Contains(lowered, "record not found"):
		return OutcomeNoRecord
	default:
		return OutcomeAmbiguous
	}
}

package tnedistrict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		captcha  bool
		expected Outcome
	}{
		{
			name:     "approved with application keyword",
			text:     "Application Number TN-1 Status Application Approved",
			expected: OutcomeApproved,
		},
		{
			name:     "approved with certificate keyword",
			text:     "Certificate approved and ready for download",
			expected: OutcomeApproved,
		},
		{
			name:     "approved alone is not enough",
			text:     "approved",
			expected: OutcomeAmbiguous,
		},
		{
			name:     "rejected",
			text:     "Your request was rejected due to improper documents.",
			expected: OutcomeRejected,
		},
		{
			name:     "approved checked before rejected",
			text:     "Application Approved. Previously rejected drafts are void.",
			expected: OutcomeApproved,
		},
		{
			name:     "pending",
			text:     "Your application is pending with the VAO",
			expected: OutcomePending,
		},
		{
			name:     "in progress counts as pending",
			text:     "Verification in progress",
			expected: OutcomePending,
		},
		{
			name:     "no record",
			text:     "No record found for the given number",
			expected: OutcomeNoRecord,
		},
		{
			name:     "record not found variant",
			text:     "Record not found",
			expected: OutcomeNoRecord,
		},
		{
			name:     "captcha word overrides everything",
			text:     "Application Approved. Please enter captcha to continue.",
			expected: OutcomeCaptchaRequired,
		},
		{
			name:     "captcha flag from the navigator",
			text:     "Application Approved",
			captcha:  true,
			expected: OutcomeCaptchaRequired,
		},
		{
			name:     "nothing matched",
			text:     "Welcome to the portal",
			expected: OutcomeAmbiguous,
		},
		{
			name:     "empty text",
			text:     "",
			expected: OutcomeAmbiguous,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Classify(tc.text, tc.captcha))
			// pure function: same inputs, same outcome
			require.Equal(t, tc.expected, Classify(tc.text, tc.captcha))
		})
	}
}

func TestOutcomeTerminal(t *testing.T) {
	terminal := []Outcome{
		OutcomeApproved, OutcomePending, OutcomeRejected,
		OutcomeNoRecord, OutcomeCaptchaRequired,
	}
	for _, o := range terminal {
		require.True(t, o.Terminal(), "%s should be terminal", o)
	}
	require.False(t, OutcomeError.Terminal())
	require.False(t, OutcomeAmbiguous.Terminal())
}

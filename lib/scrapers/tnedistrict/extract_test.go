package tnedistrict

import (
	"testing"

	"certassist-backend/lib/htmlutil"

	"github.com/google/go-cmp/cmp"
)

func TestExtract(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		rows     []htmlutil.LabelRow
		expected map[string]string
	}{
		{
			name: "full result pane",
			text: "Application Number\tTN-2120251031226\t...\n" +
				"Applicant Name\tKokilavani V\tFather Name\tVenkatachalam\n" +
				"Gender\tFemale\n" +
				"Status\tApplication Approved\n",
			expected: map[string]string{
				FieldAppNo:         "TN-2120251031226",
				FieldApplicantName: "Kokilavani V",
				FieldFatherName:    "Venkatachalam",
				FieldGender:        "Female",
				FieldStatusText:    "Application Approved",
			},
		},
		{
			name: "first match wins on repeated labels",
			text: "Status\tApplication Approved\n" +
				"Status\tsomething in the page footer\n",
			expected: map[string]string{
				FieldStatusText: "Application Approved",
			},
		},
		{
			name: "app number fallback by prefix scan",
			text: "Your request TN-2023000042. is recorded\nStatus  Pending\n",
			expected: map[string]string{
				FieldStatusText: "Pending",
				FieldAppNo:      "TN-2023000042",
			},
		},
		{
			name: "inline value without tabs",
			text: "Gender Female\nRequest For  Community Certificate\n",
			expected: map[string]string{
				FieldGender:  "Female",
				FieldService: "Community Certificate",
			},
		},
		{
			name: "structured rows win over free text",
			text: "Applicant Name\tgarbage from chrome\n",
			rows: []htmlutil.LabelRow{
				{Label: "Applicant Name", Value: "Kokilavani V"},
				{Label: "Remarks", Value: "Verified by VAO"},
			},
			expected: map[string]string{
				FieldApplicantName: "Kokilavani V",
				FieldRemarks:       "Verified by VAO",
			},
		},
		{
			name:     "empty input yields no fields",
			text:     "",
			expected: map[string]string{},
		},
		{
			name: "label with no value stays absent",
			text: "Remarks\nStatus\tPending\n",
			expected: map[string]string{
				FieldStatusText: "Pending",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text, tc.rows)
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Fatalf("unexpected fields (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	text := "Application Number\tTN-2120251031226\n" +
		"Applicant Name\tKokilavani V\tFather Name\tVenkatachalam\n" +
		"Status\tApplication Approved\n"

	first := Extract(text, nil)
	second := Extract(text, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("extraction is not idempotent (-first +second):\n%s", diff)
	}
}

func TestExtractCaseSensitiveLabels(t *testing.T) {
	// lowercase occurrences in page chrome must not bind
	got := Extract("application number\tTN-1\nstatus\tapproved\n", nil)
	if _, ok := got[FieldStatusText]; ok {
		t.Fatalf("lowercase label should not bind, got %v", got)
	}
	// the prefix fallback may still find the app number
	if got[FieldAppNo] != "TN-1" {
		t.Fatalf("expected fallback app number, got %v", got)
	}
}

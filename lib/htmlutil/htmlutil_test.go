package htmlutil

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestGetLabelRows(t *testing.T) {
	markup := `<html><body><table>
		<tr><th>Application Number</th><td>TN-2120251031226</td></tr>
		<tr><th>Applicant Name</th><td>Kokilavani V</td><th>Father Name</th><td>Venkatachalam</td></tr>
		<tr><th></th><td>loose value</td></tr>
		<tr><td>Remarks</td></tr>
	</table></body></html>`

	rows, err := GetLabelRows(context.Background(), markup)
	require.NoError(t, err)

	expected := []LabelRow{
		{Label: "Application Number", Value: "TN-2120251031226"},
		{Label: "Applicant Name", Value: "Kokilavani V"},
		{Label: "Father Name", Value: "Venkatachalam"},
	}
	if diff := cmp.Diff(expected, rows); diff != "" {
		t.Fatalf("unexpected rows (-want +got):\n%s", diff)
	}
}

func TestHasAnyMatch(t *testing.T) {
	markup := `<html><body><img src="/jcaptcha.png" id="challenge"/></body></html>`

	found, err := HasAnyMatch(context.Background(), markup, []string{
		`div.g-recaptcha`,
		`img[src*='captcha']`,
	})
	require.NoError(t, err)
	require.True(t, found)

	found, err = HasAnyMatch(context.Background(), markup, []string{`iframe[src*='recaptcha']`})
	require.NoError(t, err)
	require.False(t, found)
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b", CleanText("  a \t\n  b  "))
}

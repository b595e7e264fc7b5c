package status

import (
	"context"
	"errors"
	"sync"
	"testing"

	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeNavigator struct {
	mu       sync.Mutex
	queries  int
	captures []tnedistrict.Capture
	errs     []error
}

func (f *fakeNavigator) Query(ctx context.Context, applicationNo string) (tnedistrict.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.queries
	f.queries++
	if i >= len(f.captures) {
		i = len(f.captures) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.captures[i], err
}

func (f *fakeNavigator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func setup(t testing.TB, nav *fakeNavigator) *Service {
	cleanup := telemetry.SetupForTesting(t, "test:services/status")
	t.Cleanup(cleanup)
	return NewService(nav, 2)
}

func TestResolveApproved(t *testing.T) {
	nav := &fakeNavigator{captures: []tnedistrict.Capture{{
		BodyText: "Application Number\tTN-2120251031226\n" +
			"Applicant Name\tKokilavani V\tFather Name\tVenkatachalam\n" +
			"Gender\tFemale\n" +
			"Status\tApplication Approved\n",
		Url:        "https://portal.example/VerifyCerti.xhtml",
		Screenshot: "screenshots/afterclick_x.png",
	}}}
	s := setup(t, nav)

	res, err := s.ResolveStatus(context.Background(), "TN-2120251031226")
	require.NoError(t, err)
	require.Equal(t, tnedistrict.OutcomeApproved, res.Outcome)
	require.Equal(t, "TN-2120251031226", res.Fields[tnedistrict.FieldAppNo])
	require.Equal(t, "Kokilavani V", res.Fields[tnedistrict.FieldApplicantName])
	require.Equal(t, "Venkatachalam", res.Fields[tnedistrict.FieldFatherName])
	require.Equal(t, "Female", res.Fields[tnedistrict.FieldGender])
	require.Equal(t, "https://portal.example/VerifyCerti.xhtml", res.SourceURL)
	// artifact only accompanies CaptchaRequired and Error
	require.Empty(t, res.ArtifactPath)
	require.Equal(t, 1, nav.count())
}

func TestResolveCaptcha(t *testing.T) {
	nav := &fakeNavigator{captures: []tnedistrict.Capture{{
		BodyText:   "Please enter captcha to proceed",
		Screenshot: "screenshots/afterclick_captcha.png",
		Url:        "https://portal.example/VerifyCerti.xhtml",
	}}}
	s := setup(t, nav)

	res, err := s.ResolveStatus(context.Background(), "TN-1")
	require.NoError(t, err)
	require.Equal(t, tnedistrict.OutcomeCaptchaRequired, res.Outcome)
	require.Equal(t, "screenshots/afterclick_captcha.png", res.ArtifactPath)
	// captcha is terminal, never retried
	require.Equal(t, 1, nav.count())
}

func TestRetryBound(t *testing.T) {
	nav := &fakeNavigator{
		captures: []tnedistrict.Capture{
			{BodyText: "nothing recognizable"},
			{BodyText: "still nothing recognizable"},
		},
	}
	s := setup(t, nav)

	res, err := s.ResolveStatus(context.Background(), "TN-1")
	require.NoError(t, err)
	require.Equal(t, tnedistrict.OutcomeAmbiguous, res.Outcome)
	// exactly 2 attempts, not more
	require.Equal(t, 2, nav.count())
}

func TestRetryRecovers(t *testing.T) {
	nav := &fakeNavigator{
		captures: []tnedistrict.Capture{
			{},
			{BodyText: "Status Application Approved"},
		},
		errs: []error{errors.New("net::ERR_TIMED_OUT"), nil},
	}
	s := setup(t, nav)

	res, err := s.ResolveStatus(context.Background(), "TN-1")
	require.NoError(t, err)
	require.Equal(t, tnedistrict.OutcomeApproved, res.Outcome)
	require.Equal(t, 2, nav.count())
}

func TestNavigationFaultBecomesErrorOutcome(t *testing.T) {
	nav := &fakeNavigator{
		captures: []tnedistrict.Capture{{
			Screenshot: "screenshots/no_fill_x.png",
			Url:        "https://portal.example/VerifyCerti.xhtml",
		}},
		errs: []error{
			tnedistrict.ErrInputNotFound,
			tnedistrict.ErrInputNotFound,
		},
	}
	s := setup(t, nav)

	res, err := s.ResolveStatus(context.Background(), "TN-1")
	require.NoError(t, err)
	require.Equal(t, tnedistrict.OutcomeError, res.Outcome)
	require.Equal(t, "screenshots/no_fill_x.png", res.ArtifactPath)
	require.NotEmpty(t, res.RawText)
	require.Equal(t, 2, nav.count())
}

func TestOutcomeIsAlwaysModeled(t *testing.T) {
	known := map[tnedistrict.Outcome]bool{
		tnedistrict.OutcomeApproved:        true,
		tnedistrict.OutcomePending:         true,
		tnedistrict.OutcomeRejected:        true,
		tnedistrict.OutcomeNoRecord:        true,
		tnedistrict.OutcomeCaptchaRequired: true,
		tnedistrict.OutcomeAmbiguous:       true,
		tnedistrict.OutcomeError:           true,
	}

	bodies := []string{
		"", "approved", "Application Approved", "rejected", "pending",
		"no record", "captcha", "?????", "Record not found", "in progress",
	}
	for _, body := range bodies {
		nav := &fakeNavigator{captures: []tnedistrict.Capture{{BodyText: body}}}
		s := setup(t, nav)
		res, err := s.ResolveStatus(context.Background(), "TN-1")
		require.NoError(t, err)
		require.True(t, known[res.Outcome], "unmodeled outcome %q for body %q", res.Outcome, body)
	}
}

func TestEmptyApplicationNo(t *testing.T) {
	s := setup(t, &fakeNavigator{captures: []tnedistrict.Capture{{}}})
	_, err := s.ResolveStatus(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyApplicationNo)
}

package jobs

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/lib/telemetry"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setup(t testing.TB) Service {
	cleanup := telemetry.SetupForTesting(t, "test:services/jobs")
	t.Cleanup(cleanup)

	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// one in-memory database per test, one connection so every query
	// sees the same database
	sqlite.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlite.Close() })

	s, err := NewService(sqlite)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func approvedResult(appNo string) tnedistrict.StatusResult {
	return tnedistrict.StatusResult{
		Outcome: tnedistrict.OutcomeApproved,
		Fields: map[string]string{
			tnedistrict.FieldAppNo:         appNo,
			tnedistrict.FieldApplicantName: "Kokilavani V",
			tnedistrict.FieldFatherName:    "Venkatachalam",
			tnedistrict.FieldGender:        "Female",
			tnedistrict.FieldRequestDate:   "07/11/2025",
			tnedistrict.FieldStatusText:    "Application Approved",
		},
		SourceURL: "https://portal.example/VerifyCerti.xhtml",
	}
}

func TestLifecycle(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	job, err := s.Create(ctx, approvedResult("TN-2120251031226"), "chat-100")
	require.NoError(t, err)
	require.Equal(t, StatePendingAdmin, job.State)
	require.Equal(t, "TN-2120251031226", job.ApplicationNo)
	require.Equal(t, "Kokilavani V", job.ApplicantName)
	require.Equal(t, "07/11/2025", job.RequestDate)
	require.Equal(t, "chat-100", job.RequesterChatID)
	require.False(t, job.CreatedAt.IsZero())
	require.True(t, job.TakenAt.IsZero())
	require.True(t, job.DoneAt.IsZero())

	claimed, err := s.Claim(ctx, job.ID, "operator-1")
	require.NoError(t, err)
	require.Equal(t, StateInProgress, claimed.State)
	require.Equal(t, "operator-1", claimed.OperatorID)
	require.False(t, claimed.TakenAt.IsZero())

	done, err := s.Complete(ctx, job.ID, "uploads/cert_TN-2120251031226.pdf")
	require.NoError(t, err)
	require.Equal(t, StateDone, done.State)
	require.Equal(t, "uploads/cert_TN-2120251031226.pdf", done.ArtifactRef)
	require.False(t, done.DoneAt.IsZero())
}

func TestCreateRequiresApproved(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	for _, outcome := range []tnedistrict.Outcome{
		tnedistrict.OutcomePending,
		tnedistrict.OutcomeRejected,
		tnedistrict.OutcomeNoRecord,
		tnedistrict.OutcomeCaptchaRequired,
		tnedistrict.OutcomeAmbiguous,
		tnedistrict.OutcomeError,
	} {
		result := approvedResult("TN-1")
		result.Outcome = outcome
		_, err := s.Create(ctx, result, "chat-1")
		require.ErrorIs(t, err, ErrNotApproved, "outcome %s", outcome)
	}

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestTransitionsAreMonotonic(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	job, err := s.Create(ctx, approvedResult("TN-1"), "chat-1")
	require.NoError(t, err)

	// complete before claim is rejected
	_, err = s.Complete(ctx, job.ID, "x.pdf")
	require.ErrorIs(t, err, ErrNotCompletable)

	_, err = s.Claim(ctx, job.ID, "operator-1")
	require.NoError(t, err)

	// second claim on an in-progress job is rejected, state unchanged
	_, err = s.Claim(ctx, job.ID, "operator-2")
	require.ErrorIs(t, err, ErrNotClaimable)
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StateInProgress, got.State)
	require.Equal(t, "operator-1", got.OperatorID)

	_, err = s.Complete(ctx, job.ID, "x.pdf")
	require.NoError(t, err)

	// done is never followed by any further transition
	_, err = s.Claim(ctx, job.ID, "operator-2")
	require.ErrorIs(t, err, ErrNotClaimable)
	_, err = s.Complete(ctx, job.ID, "y.pdf")
	require.ErrorIs(t, err, ErrNotCompletable)

	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StateDone, got.State)
	require.Equal(t, "x.pdf", got.ArtifactRef)
}

func TestConcurrentClaimRace(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	job, err := s.Create(ctx, approvedResult("TN-1"), "chat-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Claim(ctx, job.ID, []string{"operator-1", "operator-2"}[i])
		}(i)
	}
	wg.Wait()

	var successes, rejections int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case err == ErrNotClaimable:
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, rejections)
}

func TestUnknownJob(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Claim(ctx, "nope", "operator-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Complete(ctx, "nope", "x.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListOpenOrder(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	first, err := s.Create(ctx, approvedResult("TN-1"), "chat-1")
	require.NoError(t, err)
	second, err := s.Create(ctx, approvedResult("TN-2"), "chat-2")
	require.NoError(t, err)
	third, err := s.Create(ctx, approvedResult("TN-3"), "chat-3")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = s.Claim(ctx, second.ID, "operator-1")
	require.NoError(t, err)
	_, err = s.Complete(ctx, second.ID, "x.pdf")
	require.NoError(t, err)

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, first.ID, open[0].ID)
	require.Equal(t, third.ID, open[1].ID)
}

package ops

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/lib/telemetry"
	"certassist-backend/services/jobs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeProbe struct {
	err error
}

func (f fakeProbe) Check(ctx context.Context) error {
	return f.err
}

func setup(t testing.TB, probe Prober, token string) (*Service, jobs.Service) {
	gin.SetMode(gin.TestMode)

	cleanup := telemetry.SetupForTesting(t, "test:services/ops")
	t.Cleanup(cleanup)

	sqlite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlite.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlite.Close() })

	jobSvc, err := jobs.NewService(sqlite)
	require.NoError(t, err)

	return NewService(sqlite, jobSvc, probe, Options{Token: token}), jobSvc
}

func createJob(t testing.TB, jobSvc jobs.Service, appNo string) jobs.Job {
	job, err := jobSvc.Create(context.Background(), tnedistrict.StatusResult{
		Outcome: tnedistrict.OutcomeApproved,
		Fields: map[string]string{
			tnedistrict.FieldAppNo:         appNo,
			tnedistrict.FieldApplicantName: "Kokilavani V",
		},
	}, "7")
	require.NoError(t, err)
	return job
}

func do(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	svc, _ := setup(t, fakeProbe{}, "")
	rec := do(svc.Router(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "ok", out["database"])
	require.Equal(t, "ok", out["portal"])
}

func TestHealthPortalDown(t *testing.T) {
	svc, _ := setup(t, fakeProbe{err: errors.New("status 503")}, "")
	rec := do(svc.Router(), http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	svc, _ := setup(t, fakeProbe{}, "sekrit")
	router := svc.Router()

	rec := do(router, http.MethodGet, "/jobs", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodGet, "/jobs", "wrong", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodGet, "/jobs", "sekrit", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// health stays open for load balancers
	rec = do(router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestJobLifecycleOverHttp(t *testing.T) {
	svc, jobSvc := setup(t, fakeProbe{}, "")
	router := svc.Router()
	job := createJob(t, jobSvc, "TN-2120251111709")

	rec := do(router, http.MethodGet, "/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), job.ID)

	rec = do(router, http.MethodPost, "/jobs/"+job.ID+"/claim", "", claimReq{OperatorID: "op-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// second claim loses the race
	rec = do(router, http.MethodPost, "/jobs/"+job.ID+"/claim", "", claimReq{OperatorID: "op-2"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodPost, "/jobs/"+job.ID+"/complete", "", completeReq{ArtifactRef: "uploads/cert.pdf"})
	require.Equal(t, http.StatusOK, rec.Code)

	var done jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	require.Equal(t, jobs.StateDone, done.State)
	require.Equal(t, "op-1", done.OperatorID)
	require.Equal(t, "uploads/cert.pdf", done.ArtifactRef)

	// done jobs drop out of the open list
	rec = do(router, http.MethodGet, "/jobs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), job.ID)
}

func TestJobValidation(t *testing.T) {
	svc, _ := setup(t, fakeProbe{}, "")
	router := svc.Router()

	rec := do(router, http.MethodGet, "/jobs/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPost, "/jobs/nope/claim", "", claimReq{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/jobs/nope/claim", "", claimReq{OperatorID: "op-1"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPost, "/jobs/nope/complete", "", completeReq{ArtifactRef: "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

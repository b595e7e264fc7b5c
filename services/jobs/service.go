package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/lib/timezone"
	"certassist-backend/services/jobs/db"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("certassist.services.jobs")

type State string

const (
	StatePendingAdmin State = "pending_admin"
	StateInProgress   State = "in_progress"
	StateDone         State = "done"
)

var (
	ErrNotApproved    = errors.New("job can only be created from an approved result")
	ErrNotFound       = errors.New("job not found")
	ErrNotClaimable   = errors.New("job is not claimable")
	ErrNotCompletable = errors.New("job is not completable")
)

// Job is one in-flight fulfillment case. The applicant fields are a
// snapshot of the StatusResult that triggered creation, not a live
// reference.
type Job struct {
	ID              string
	ApplicationNo   string
	ApplicantName   string
	FatherName      string
	Gender          string
	Service         string
	RequestDate     string
	StatusText      string
	Remarks         string
	SourceUrl       string
	RequesterChatID string
	State           State
	OperatorID      string
	ArtifactRef     string
	CreatedAt       time.Time
	TakenAt         time.Time
	DoneAt          time.Time
}

type Service struct {
	db  *sql.DB
	qry *db.Queries
}

func NewService(database *sql.DB) (Service, error) {
	_, err := database.Exec(db.Schema)
	if err != nil {
		return Service{}, fmt.Errorf("apply schema: %w", err)
	}
	return Service{
		db:  database,
		qry: db.New(database),
	}, nil
}

// newJobID builds a time-derived identifier with a random suffix so two
// creations in the same second still get distinct ids.
func newJobID(now time.Time) (string, error) {
	suffix, err := random.String(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", now.Format("20060102150405"), strings.ToLower(suffix)), nil
}

// Create promotes a confirmed Approved result into a pending job. The
// caller is responsible for having collected the user's confirmation
// that the extracted identity fields are correct.
func (s Service) Create(ctx context.Context, result tnedistrict.StatusResult, requesterChatID string) (Job, error) {
	ctx, span := tracer.Start(ctx, "Create")
	defer span.End()

	if result.Outcome != tnedistrict.OutcomeApproved {
		return Job{}, ErrNotApproved
	}

	now := timezone.Now()
	id, err := newJobID(now)
	if err != nil {
		return Job{}, err
	}

	err = s.qry.CreateJob(ctx, db.CreateJobParams{
		ID:              id,
		ApplicationNo:   result.Fields[tnedistrict.FieldAppNo],
		ApplicantName:   result.Fields[tnedistrict.FieldApplicantName],
		FatherName:      result.Fields[tnedistrict.FieldFatherName],
		Gender:          result.Fields[tnedistrict.FieldGender],
		Service:         result.Fields[tnedistrict.FieldService],
		RequestDate:     result.Fields[tnedistrict.FieldRequestDate],
		StatusText:      result.Fields[tnedistrict.FieldStatusText],
		Remarks:         result.Fields[tnedistrict.FieldRemarks],
		SourceUrl:       result.SourceURL,
		RequesterChatID: requesterChatID,
		State:           string(StatePendingAdmin),
		CreatedAt:       now.Unix(),
	})
	if err != nil {
		return Job{}, err
	}
	s.audit(ctx, id, "created", requesterChatID)

	span.SetAttributes(attribute.String("job_id", id))
	slog.InfoContext(ctx, "job created",
		"job_id", id,
		"application_no", result.Fields[tnedistrict.FieldAppNo],
	)

	return s.Get(ctx, id)
}

// Claim transitions pending_admin -> in_progress. First claim wins: the
// state check and the transition are one conditional UPDATE, so two
// racing operators cannot both succeed.
func (s Service) Claim(ctx context.Context, jobID, actorID string) (Job, error) {
	ctx, span := tracer.Start(ctx, "Claim", trace.WithAttributes(
		attribute.String("job_id", jobID),
		attribute.String("actor_id", actorID),
	))
	defer span.End()

	affected, err := s.qry.ClaimJob(ctx, db.ClaimJobParams{
		NewState:   string(StateInProgress),
		OperatorID: actorID,
		TakenAt:    timezone.Now().Unix(),
		ID:         jobID,
		FromState:  string(StatePendingAdmin),
	})
	if err != nil {
		return Job{}, err
	}
	if affected == 0 {
		_, err := s.Get(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		return Job{}, ErrNotClaimable
	}
	s.audit(ctx, jobID, "claimed", actorID)

	return s.Get(ctx, jobID)
}

// Complete transitions in_progress -> done, recording the delivered
// artifact reference.
func (s Service) Complete(ctx context.Context, jobID, artifactRef string) (Job, error) {
	ctx, span := tracer.Start(ctx, "Complete", trace.WithAttributes(
		attribute.String("job_id", jobID),
	))
	defer span.End()

	affected, err := s.qry.CompleteJob(ctx, db.CompleteJobParams{
		NewState:    string(StateDone),
		ArtifactRef: artifactRef,
		DoneAt:      timezone.Now().Unix(),
		ID:          jobID,
		FromState:   string(StateInProgress),
	})
	if err != nil {
		return Job{}, err
	}
	if affected == 0 {
		_, err := s.Get(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		return Job{}, ErrNotCompletable
	}
	s.audit(ctx, jobID, "completed", "")

	return s.Get(ctx, jobID)
}

func (s Service) Get(ctx context.Context, jobID string) (Job, error) {
	row, err := s.qry.GetJob(ctx, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	return fromRow(row), nil
}

// ListOpen returns every job that is not yet done, in creation order.
func (s Service) ListOpen(ctx context.Context) ([]Job, error) {
	rows, err := s.qry.ListJobsByNotState(ctx, string(StateDone))
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, len(rows))
	for i, r := range rows {
		jobs[i] = fromRow(r)
	}
	return jobs, nil
}

func (s Service) audit(ctx context.Context, jobID, action, actor string) {
	err := s.qry.CreateAudit(ctx, db.CreateAuditParams{
		Ts:     timezone.Now().Unix(),
		JobID:  jobID,
		Action: action,
		Actor:  actor,
	})
	if err != nil {
		slog.WarnContext(ctx, "audit write failed", "job_id", jobID, "action", action, "err", err)
	}
}

func fromRow(r db.Job) Job {
	j := Job{
		ID:              r.ID,
		ApplicationNo:   r.ApplicationNo,
		ApplicantName:   r.ApplicantName,
		FatherName:      r.FatherName,
		Gender:          r.Gender,
		Service:         r.Service,
		RequestDate:     r.RequestDate,
		StatusText:      r.StatusText,
		Remarks:         r.Remarks,
		SourceUrl:       r.SourceUrl,
		RequesterChatID: r.RequesterChatID,
		State:           State(r.State),
		OperatorID:      r.OperatorID,
		ArtifactRef:     r.ArtifactRef,
		CreatedAt:       time.Unix(r.CreatedAt, 0).In(timezone.Location),
	}
	if r.TakenAt.Valid {
		j.TakenAt = time.Unix(r.TakenAt.Int64, 0).In(timezone.Location)
	}
	if r.DoneAt.Valid {
		j.DoneAt = time.Unix(r.DoneAt.Int64, 0).In(timezone.Location)
	}
	return j
}

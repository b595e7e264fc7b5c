package db

import (
	"context"
	"database/sql"
)

const createJob = `
INSERT INTO jobs (
    id, application_no, applicant_name, father_name, gender, service,
    request_date, status_text, remarks, source_url, requester_chat_id,
    state, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type CreateJobParams struct {
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
	State           string
	CreatedAt       int64
}

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) error {
	_, err := q.db.ExecContext(ctx, createJob,
		arg.ID,
		arg.ApplicationNo,
		arg.ApplicantName,
		arg.FatherName,
		arg.Gender,
		arg.Service,
		arg.RequestDate,
		arg.StatusText,
		arg.Remarks,
		arg.SourceUrl,
		arg.RequesterChatID,
		arg.State,
		arg.CreatedAt,
	)
	return err
}

const jobColumns = `id, application_no, applicant_name, father_name, gender, service,
request_date, status_text, remarks, source_url, requester_chat_id, state,
operator_id, artifact_ref, created_at, taken_at, done_at`

const getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

func (q *Queries) GetJob(ctx context.Context, id string) (Job, error) {
	row := q.db.QueryRowContext(ctx, getJob, id)
	return scanJob(row)
}

const listJobsByNotState = `SELECT ` + jobColumns + ` FROM jobs WHERE state != ? ORDER BY created_at ASC, rowid ASC`

func (q *Queries) ListJobsByNotState(ctx context.Context, state string) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listJobsByNotState, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		err := rows.Scan(
			&j.ID, &j.ApplicationNo, &j.ApplicantName, &j.FatherName,
			&j.Gender, &j.Service, &j.RequestDate, &j.StatusText, &j.Remarks,
			&j.SourceUrl, &j.RequesterChatID, &j.State, &j.OperatorID,
			&j.ArtifactRef, &j.CreatedAt, &j.TakenAt, &j.DoneAt,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

const claimJob = `
UPDATE jobs SET state = ?, operator_id = ?, taken_at = ?
WHERE id = ? AND state = ?
`

type ClaimJobParams struct {
	NewState   string
	OperatorID string
	TakenAt    int64
	ID         string
	FromState  string
}

// ClaimJob is a single-statement compare-and-swap on the job state;
// returns the number of rows transitioned (0 or 1).
func (q *Queries) ClaimJob(ctx context.Context, arg ClaimJobParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimJob,
		arg.NewState, arg.OperatorID, arg.TakenAt, arg.ID, arg.FromState,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const completeJob = `
UPDATE jobs SET state = ?, artifact_ref = ?, done_at = ?
WHERE id = ? AND state = ?
`

type CompleteJobParams struct {
	NewState    string
	ArtifactRef string
	DoneAt      int64
	ID          string
	FromState   string
}

func (q *Queries) CompleteJob(ctx context.Context, arg CompleteJobParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeJob,
		arg.NewState, arg.ArtifactRef, arg.DoneAt, arg.ID, arg.FromState,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createAudit = `INSERT INTO audit (ts, job_id, action, actor) VALUES (?, ?, ?, ?)`

type CreateAuditParams struct {
	Ts     int64
	JobID  string
	Action string
	Actor  string
}

func (q *Queries) CreateAudit(ctx context.Context, arg CreateAuditParams) error {
	_, err := q.db.ExecContext(ctx, createAudit, arg.Ts, arg.JobID, arg.Action, arg.Actor)
	return err
}

func scanJob(row *sql.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.ApplicationNo, &j.ApplicantName, &j.FatherName,
		&j.Gender, &j.Service, &j.RequestDate, &j.StatusText, &j.Remarks,
		&j.SourceUrl, &j.RequesterChatID, &j.State, &j.OperatorID,
		&j.ArtifactRef, &j.CreatedAt, &j.TakenAt, &j.DoneAt,
	)
	return j, err
}

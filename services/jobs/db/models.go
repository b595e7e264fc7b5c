package db

import "database/sql"

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
	State           string
	OperatorID      string
	ArtifactRef     string
	CreatedAt       int64
	TakenAt         sql.NullInt64
	DoneAt          sql.NullInt64
}

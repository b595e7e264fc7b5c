package status

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"certassist-backend/lib/htmlutil"
	"certassist-backend/lib/scrapers/tnedistrict"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("certassist.services.status")

var ErrEmptyApplicationNo = errors.New("application number is empty")

// bound on diagnostic text surfaced on failure paths
const maxFailureText = 2000

// Navigator drives one browser session to a terminal render state.
type Navigator interface {
	Query(ctx context.Context, applicationNo string) (tnedistrict.Capture, error)
}

// Service is the status resolution pipeline: navigate, extract,
// classify, with a one-shot retry on Error/Ambiguous. Browser sessions
// are blocking and exclusive, so concurrent resolutions are bounded by a
// fixed number of session slots; callers queue on slot availability.
type Service struct {
	nav   Navigator
	slots chan struct{}
}

func NewService(nav Navigator, maxSessions int) *Service {
	if maxSessions <= 0 {
		maxSessions = 2
	}
	return &Service{
		nav:   nav,
		slots: make(chan struct{}, maxSessions),
	}
}

// ResolveStatus resolves one application number to a StatusResult. The
// returned outcome is always one of the seven defined values; navigation
// faults surface as OutcomeError results, never as raw errors. The error
// return only reports pre-navigation failures (bad input, cancelled
// context while waiting for a session slot).
func (s *Service) ResolveStatus(ctx context.Context, applicationNo string) (tnedistrict.StatusResult, error) {
	ctx, span := tracer.Start(ctx, "ResolveStatus", trace.WithAttributes(
		attribute.String("application_no", applicationNo),
	))
	defer span.End()

	applicationNo = strings.TrimSpace(applicationNo)
	if applicationNo == "" {
		return tnedistrict.StatusResult{Outcome: tnedistrict.OutcomeError}, ErrEmptyApplicationNo
	}

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return tnedistrict.StatusResult{Outcome: tnedistrict.OutcomeError}, ctx.Err()
	}

	attempts := 1
	result := s.attempt(ctx, applicationNo)
	if !result.Outcome.Terminal() {
		slog.InfoContext(ctx, "retrying status resolution",
			"application_no", applicationNo,
			"outcome", result.Outcome,
		)
		attempts = 2
		result = s.attempt(ctx, applicationNo)
	}

	span.SetAttributes(
		attribute.String("outcome", string(result.Outcome)),
		attribute.Int("attempts", attempts),
	)
	return result, nil
}

func (s *Service) attempt(ctx context.Context, applicationNo string) tnedistrict.StatusResult {
	capture, err := s.nav.Query(ctx, applicationNo)

	var rows []htmlutil.LabelRow
	if capture.Markup != "" {
		rows, _ = htmlutil.GetLabelRows(ctx, capture.Markup)
	}
	fields := tnedistrict.Extract(capture.BodyText, rows)

	if err != nil {
		raw := capture.BodyText
		if raw == "" {
			raw = err.Error()
		}
		return tnedistrict.StatusResult{
			Outcome:      tnedistrict.OutcomeError,
			Fields:       fields,
			RawText:      truncate(raw, maxFailureText),
			ArtifactPath: capture.Screenshot,
			SourceURL:    capture.Url,
		}
	}

	outcome := tnedistrict.Classify(capture.BodyText, capture.Captcha)

	artifact := ""
	if outcome == tnedistrict.OutcomeCaptchaRequired {
		artifact = capture.Screenshot
	}

	return tnedistrict.StatusResult{
		Outcome:      outcome,
		Fields:       fields,
		RawText:      capture.BodyText,
		ArtifactPath: artifact,
		SourceURL:    capture.Url,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

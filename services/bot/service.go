package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"certassist-backend/lib/scrapers/tnedistrict"
	"certassist-backend/services/jobs"
	"certassist-backend/services/payments"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("certassist.services.bot")

// user-visible cap on diagnostic snippets, under Telegram's message limit
const debugSnippetLen = 1800

// Sender is the outbound half of the chat transport.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
}

// Downloader pulls an uploaded chat file down to local disk.
type Downloader interface {
	Download(ctx context.Context, fileID, dir string) (string, error)
}

// Resolver turns an application number into a classified status.
type Resolver interface {
	ResolveStatus(ctx context.Context, applicationNo string) (tnedistrict.StatusResult, error)
}

// Payments creates and polls payment links. A nil Payments disables the
// payment gate and certificates are delivered as soon as they are
// uploaded.
type Payments interface {
	CreateLink(ctx context.Context, reference string) (payments.Link, error)
	IsPaid(ctx context.Context, linkID string) (bool, error)
}

type Options struct {
	// chat allowed to upload certificates and receive operator notices
	AdminChatID int64  `json:"admin_chat_id"`
	UploadDir   string `json:"upload_dir"`
	SessionTTL  time.Duration
}

// Service is the conversational front end: it routes chat commands to
// the status, jobs and payments services and keeps per-chat session
// state in between.
type Service struct {
	chat     Sender
	files    Downloader
	resolver Resolver
	jobs     jobs.Service
	payments Payments
	notifier Notifier
	sessions *SessionStore
	opts     Options
}

func NewService(chat Sender, files Downloader, resolver Resolver, jobSvc jobs.Service, pay Payments, notifier Notifier, opts Options) *Service {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Service{
		chat:     chat,
		files:    files,
		resolver: resolver,
		jobs:     jobSvc,
		payments: pay,
		notifier: notifier,
		sessions: NewSessionStore(opts.SessionTTL),
		opts:     opts,
	}
}

// Run consumes the long poll until ctx is cancelled. Updates are
// handled concurrently; ordering between chats is not guaranteed.
func (s *Service) Run(ctx context.Context, tg *TelegramClient) error {
	slog.InfoContext(ctx, "bot poll loop started")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := tg.GetUpdates(ctx, offset, 50)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.WarnContext(ctx, "getUpdates failed, backing off", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second * 5):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			go s.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate dispatches one inbound update. All failures are handled
// in-band (logged, or reported back to the chat); nothing propagates to
// the poll loop.
func (s *Service) HandleUpdate(ctx context.Context, u Update) {
	if u.Message == nil {
		return
	}
	msg := u.Message
	chatID := msg.Chat.ID

	ctx, span := tracer.Start(ctx, "HandleUpdate", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
	))
	defer span.End()

	if msg.Document != nil {
		s.handleDocument(ctx, chatID, msg)
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch cmd {
	case "/start":
		s.reply(ctx, chatID, "Welcome!\nSend /check <application_no> to check your certificate status.")
	case "/check":
		s.handleCheck(ctx, chatID, args)
	case "/confirm":
		s.handleConfirm(ctx, chatID)
	case "/getcert":
		s.handleGetCert(ctx, chatID, args)
	case "/paid":
		s.handlePaid(ctx, chatID, args)
	default:
		s.reply(ctx, chatID, "Unknown command. Available commands:\n/check <application_no>\n/confirm\n/getcert <application_no>\n/paid <application_no>")
	}
}

func (s *Service) handleCheck(ctx context.Context, chatID int64, args []string) {
	ctx, span := tracer.Start(ctx, "handleCheck")
	defer span.End()

	if len(args) == 0 {
		s.reply(ctx, chatID, "Please send: /check <application_number>\nExample: /check TN-2120251111709")
		return
	}
	appNo := strings.TrimSpace(args[0])

	s.reply(ctx, chatID, fmt.Sprintf("Checking status for %s ... please wait (may take a few seconds).", appNo))

	result, err := s.resolver.ResolveStatus(ctx, appNo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status resolution failed")
		s.reply(ctx, chatID, fmt.Sprintf("Error while checking: %v", err))
		return
	}

	switch result.Outcome {
	case tnedistrict.OutcomePending:
		s.reply(ctx, chatID, "Status: PENDING — your application is under review. Please check after 48 hours.")

	case tnedistrict.OutcomeApproved:
		s.sessions.Put(chatID, &Session{ApplicationNo: appNo, Result: result})
		s.reply(ctx, chatID, fmt.Sprintf(
			"Status: APPROVED ✅\nApplication: %s\nName: %s\nFather: %s\nService: %s\nRemarks: %s\n\nIf these details are yours, reply /confirm to queue your certificate, or use /getcert %s to pay and download.",
			fieldOr(result, tnedistrict.FieldAppNo, appNo),
			fieldOr(result, tnedistrict.FieldApplicantName, "N/A"),
			fieldOr(result, tnedistrict.FieldFatherName, "N/A"),
			fieldOr(result, tnedistrict.FieldService, "N/A"),
			fieldOr(result, tnedistrict.FieldRemarks, "N/A"),
			appNo,
		))

	case tnedistrict.OutcomeRejected:
		remarks := fieldOr(result, tnedistrict.FieldRemarks, "No remarks provided.")
		s.reply(ctx, chatID, fmt.Sprintf("Status: REJECTED ❌\nRemarks: %s\nPlease reapply with corrected documents or visit your VAO.", remarks))

	case tnedistrict.OutcomeNoRecord:
		s.reply(ctx, chatID, "No record found for that application number. Please check the number and try again.")

	case tnedistrict.OutcomeCaptchaRequired:
		s.reply(ctx, chatID, "This application requires operator action (captcha). We will notify an operator.")
		s.notifyCaptcha(ctx, appNo, chatID, result)

	default:
		s.replyDebug(ctx, chatID, result)
	}
}

func (s *Service) handleConfirm(ctx context.Context, chatID int64) {
	ctx, span := tracer.Start(ctx, "handleConfirm")
	defer span.End()

	sess := s.sessions.Get(chatID)
	if sess == nil || sess.Result.Outcome != tnedistrict.OutcomeApproved {
		s.reply(ctx, chatID, "Nothing to confirm. Run /check <application_no> first.")
		return
	}
	if sess.JobID != "" {
		s.reply(ctx, chatID, fmt.Sprintf("Your certificate request %s is already queued.", sess.JobID))
		return
	}

	job, err := s.jobs.Create(ctx, sess.Result, strconv.FormatInt(chatID, 10))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job creation failed")
		s.reply(ctx, chatID, "Could not queue your request right now. Please try again later.")
		return
	}
	s.sessions.Update(chatID, func(sess *Session) {
		sess.JobID = job.ID
	})

	err = s.notifier.Notify(ctx, Notice{
		Subject: "New certificate job",
		Body: fmt.Sprintf("Job: %s\nApplication: %s\nApplicant: %s\nUser Chat ID: %d\n\nDownload the certificate from the portal and upload it here with the job id as the caption.",
			job.ID, job.ApplicationNo, job.ApplicantName, chatID),
	})
	if err != nil {
		slog.WarnContext(ctx, "admin notification failed", "err", err, "job", job.ID)
	}

	s.reply(ctx, chatID, fmt.Sprintf("Request queued as %s. An operator will fetch your certificate shortly.", job.ID))
}

func (s *Service) handleGetCert(ctx context.Context, chatID int64, args []string) {
	ctx, span := tracer.Start(ctx, "handleGetCert")
	defer span.End()

	if len(args) == 0 {
		s.reply(ctx, chatID, "Please send like:\n/getcert TN-2120251031226")
		return
	}
	appNo := strings.TrimSpace(args[0])

	sess := s.sessions.Get(chatID)
	if sess == nil || sess.ApplicationNo != appNo || sess.Result.Outcome != tnedistrict.OutcomeApproved {
		s.reply(ctx, chatID, fmt.Sprintf("Please run /check %s first so we can verify the application is approved.", appNo))
		return
	}

	if sess.JobID == "" {
		s.handleConfirm(ctx, chatID)
		sess = s.sessions.Get(chatID)
		if sess == nil || sess.JobID == "" {
			return
		}
	}

	if s.payments == nil {
		s.reply(ctx, chatID, "No payment is required. You will receive the certificate here once it is ready.")
		return
	}

	if sess.PaymentUrl == "" {
		link, err := s.payments.CreateLink(ctx, sess.JobID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "payment link creation failed")
			s.reply(ctx, chatID, "Could not create a payment link right now. Please try again later.")
			return
		}
		s.sessions.Update(chatID, func(sess *Session) {
			sess.PaymentLinkID = link.ID
			sess.PaymentUrl = link.ShortUrl
		})
		sess = s.sessions.Get(chatID)
	}

	s.reply(ctx, chatID, fmt.Sprintf(
		"To download the certificate, pay ₹10 using the link below:\n%s\n\nAfter payment, type /paid %s",
		sess.PaymentUrl, appNo))
}

func (s *Service) handlePaid(ctx context.Context, chatID int64, args []string) {
	ctx, span := tracer.Start(ctx, "handlePaid")
	defer span.End()

	if len(args) == 0 {
		s.reply(ctx, chatID, "Usage: /paid TN-2120251031226")
		return
	}
	appNo := strings.TrimSpace(args[0])

	sess := s.sessions.Get(chatID)
	if sess == nil || sess.ApplicationNo != appNo {
		s.reply(ctx, chatID, fmt.Sprintf("No active request for %s. Run /check %s first.", appNo, appNo))
		return
	}
	if s.payments == nil || sess.PaymentLinkID == "" {
		s.reply(ctx, chatID, "No payment is pending for this application.")
		return
	}

	paid, err := s.payments.IsPaid(ctx, sess.PaymentLinkID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment poll failed")
		s.reply(ctx, chatID, "Could not verify the payment right now. Please try again in a minute.")
		return
	}
	if !paid {
		s.reply(ctx, chatID, "Payment not received yet. Please complete the payment and try /paid again.")
		return
	}

	var artifact string
	s.sessions.Update(chatID, func(sess *Session) {
		sess.Paid = true
		artifact = sess.PendingArtifact
		sess.PendingArtifact = ""
	})

	if artifact != "" {
		s.deliver(ctx, chatID, artifact)
		return
	}

	err = s.notifier.Notify(ctx, Notice{
		Subject: "Payment received",
		Body:    fmt.Sprintf("Job: %s\nApplication: %s\nUser Chat ID: %d\n\nUpload the certificate here with the job id as the caption.", sess.JobID, appNo, chatID),
	})
	if err != nil {
		slog.WarnContext(ctx, "admin notification failed", "err", err, "job", sess.JobID)
	}
	s.reply(ctx, chatID, "Payment confirmed. Waiting for the operator to upload your certificate.\nYou will receive the file here once ready.")
}

// handleDocument accepts certificate uploads from the admin chat. The
// caption carries the job id being fulfilled.
func (s *Service) handleDocument(ctx context.Context, chatID int64, msg *Message) {
	ctx, span := tracer.Start(ctx, "handleDocument")
	defer span.End()

	if chatID != s.opts.AdminChatID {
		s.reply(ctx, chatID, "You are not authorized to upload certificates.")
		return
	}

	jobID := strings.TrimSpace(msg.Caption)
	if jobID == "" {
		s.reply(ctx, chatID, "Please add the job id as the file caption.")
		return
	}

	path, err := s.files.Download(ctx, msg.Document.FileID, s.opts.UploadDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file download failed")
		s.reply(ctx, chatID, fmt.Sprintf("Could not save the file: %v", err))
		return
	}

	// uploads from chat implicitly claim still-unclaimed jobs
	_, err = s.jobs.Claim(ctx, jobID, strconv.FormatInt(chatID, 10))
	if err != nil && !errors.Is(err, jobs.ErrNotClaimable) {
		s.reply(ctx, chatID, fmt.Sprintf("Could not claim job %s: %v", jobID, err))
		return
	}

	job, err := s.jobs.Complete(ctx, jobID, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job completion failed")
		s.reply(ctx, chatID, fmt.Sprintf("Could not complete job %s: %v", jobID, err))
		return
	}

	s.reply(ctx, chatID, fmt.Sprintf("Certificate saved for job %s.\nFile: %s", job.ID, msg.Document.FileName))

	requester, err := strconv.ParseInt(job.RequesterChatID, 10, 64)
	if err != nil {
		// fall back to whoever is tracking the job in a live session
		requester, _ = s.sessions.FindByJob(job.ID)
		if requester == 0 {
			slog.WarnContext(ctx, "job has no deliverable requester chat", "job", job.ID, "requester", job.RequesterChatID)
			return
		}
	}

	if s.mustHoldForPayment(requester, job.ID, path) {
		s.reply(ctx, requester, fmt.Sprintf(
			"Your certificate for %s is ready. Complete the payment and send /paid %s to receive it.",
			job.ApplicationNo, job.ApplicationNo))
		return
	}
	s.deliver(ctx, requester, path)
}

// mustHoldForPayment records the artifact on the requester's session and
// reports whether delivery has to wait for /paid.
func (s *Service) mustHoldForPayment(requester int64, jobID, artifact string) bool {
	if s.payments == nil {
		return false
	}
	hold := false
	s.sessions.Update(requester, func(sess *Session) {
		if sess.JobID != jobID {
			return
		}
		if sess.PaymentLinkID != "" && !sess.Paid {
			sess.PendingArtifact = artifact
			hold = true
		}
	})
	return hold
}

func (s *Service) deliver(ctx context.Context, chatID int64, path string) {
	err := s.chat.SendDocument(ctx, chatID, path, "Your certificate is ready.")
	if err != nil {
		slog.ErrorContext(ctx, "certificate delivery failed", "err", err, "chat_id", chatID, "path", path)
		s.reply(ctx, chatID, "Your certificate is ready but could not be sent. Please contact support.")
		return
	}
	s.reply(ctx, chatID, "Here is your certificate. Thank you!")
}

func (s *Service) notifyCaptcha(ctx context.Context, appNo string, chatID int64, result tnedistrict.StatusResult) {
	err := s.notifier.Notify(ctx, Notice{
		Subject: "ADMIN ACTION REQUIRED",
		Body: fmt.Sprintf("Application: %s\nUser Chat ID: %d\n\nOpen the website, enter the application number, solve the captcha, and upload the certificate here.",
			appNo, chatID),
		Attachment: result.ArtifactPath,
	})
	if err != nil {
		slog.WarnContext(ctx, "captcha notification failed", "err", err, "application_no", appNo)
	}
}

// replyDebug surfaces the error/ambiguous fallback path the way a
// support operator needs to see it: raw snippet plus screenshot.
func (s *Service) replyDebug(ctx context.Context, chatID int64, result tnedistrict.StatusResult) {
	s.reply(ctx, chatID, "Unexpected result from the checker — showing debug info below. Please share this with support if needed.")

	raw := result.RawText
	if raw == "" {
		raw = "No raw text captured."
	}
	if len(raw) > debugSnippetLen {
		raw = raw[:debugSnippetLen] + "\n\n...[truncated]"
	}
	s.reply(ctx, chatID, fmt.Sprintf("DEBUG - status: %s\n\n%s", result.Outcome, raw))

	if result.ArtifactPath != "" {
		err := s.chat.SendPhoto(ctx, chatID, result.ArtifactPath, "Screenshot captured by the checker")
		if err != nil {
			s.reply(ctx, chatID, fmt.Sprintf("Screenshot saved at: %s", result.ArtifactPath))
		}
	}
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	err := s.chat.SendMessage(ctx, chatID, text)
	if err != nil {
		slog.WarnContext(ctx, "could not send chat message", "err", err, "chat_id", chatID)
	}
}

func fieldOr(result tnedistrict.StatusResult, key, fallback string) string {
	if v := result.Fields[key]; v != "" {
		return v
	}
	return fallback
}

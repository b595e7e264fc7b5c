package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

// Notice is one operator-facing alert. Attachment, when set, is a local
// file path (screenshots from captcha walls, mostly).
type Notice struct {
	Subject    string
	Body       string
	Attachment string
}

// Notifier delivers operator alerts. Implementations must tolerate
// being called from concurrent update handlers.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to the process log. It is the fallback
// when no admin channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notice) error {
	slog.WarnContext(ctx, "operator notice", "subject", n.Subject, "body", n.Body, "attachment", n.Attachment)
	return nil
}

// TelegramNotifier forwards notices to the admin chat, attaching the
// screenshot when one exists.
type TelegramNotifier struct {
	chat   Sender
	chatID int64
}

func NewTelegramNotifier(chat Sender, chatID int64) TelegramNotifier {
	return TelegramNotifier{chat: chat, chatID: chatID}
}

func (t TelegramNotifier) Notify(ctx context.Context, n Notice) error {
	err := t.chat.SendMessage(ctx, t.chatID, fmt.Sprintf("%s\n\n%s", n.Subject, n.Body))
	if err != nil {
		return err
	}
	if n.Attachment != "" {
		err = t.chat.SendPhoto(ctx, t.chatID, n.Attachment, n.Subject)
		if err != nil {
			slog.WarnContext(ctx, "could not attach screenshot to notice", "err", err, "path", n.Attachment)
		}
	}
	return nil
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	AdminEmail   string `json:"admin_email"`
}

// EmailNotifier mails notices to the configured operator address.
type EmailNotifier struct {
	config SmtpConfig
}

func NewEmailNotifier(config SmtpConfig) EmailNotifier {
	return EmailNotifier{config: config}
}

func (e EmailNotifier) Notify(ctx context.Context, n Notice) error {
	ctx, span := tracer.Start(ctx, "EmailNotifier.Notify")
	defer span.End()
	_ = ctx

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("CertAssist <%s>", e.config.EmailAddress)
	mail.To = []string{e.config.AdminEmail}
	mail.Subject = n.Subject
	mail.Text = []byte(n.Body)
	if n.Attachment != "" {
		_, err := mail.AttachFile(n.Attachment)
		if err != nil {
			slog.Warn("could not attach file to notice email", "err", err, "path", n.Attachment)
		}
	}

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send notice email")
		return err
	}
	return nil
}

// MultiNotifier fans a notice out to every channel, returning the first
// failure after trying all of them.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notice) error {
	var firstErr error
	for _, notifier := range m {
		err := notifier.Notify(ctx, n)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

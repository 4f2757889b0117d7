package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"lessonhub/internal/model"
)

// Result reports a notification outcome. Callers must treat every outcome as
// non-fatal: a failed or skipped email never rolls back an admission.
type Result struct {
	OK      bool
	Skipped bool
	Err     error
}

type Config struct {
	APIKey      string
	From        string
	ReplyTo     string
	AdminEmails string // comma-separated recipient list
}

type Mailer struct {
	client  *resend.Client
	from    string
	replyTo string
	admins  []string
	log     *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	m := &Mailer{
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		log:     log,
	}
	if cfg.APIKey != "" {
		m.client = resend.NewClient(cfg.APIKey)
	}
	for _, addr := range strings.Split(cfg.AdminEmails, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			m.admins = append(m.admins, addr)
		}
	}
	return m
}

func formatWindow(start, end *time.Time) string {
	f := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	}
	return f(start) + " ~ " + f(end)
}

// NotifyApplication emails the admin recipients about a freshly accepted
// application. Skips quietly when the API key or recipient list is missing.
func (m *Mailer) NotifyApplication(ctx context.Context, app *model.Application, section *model.Section, applicantEmail string) Result {
	if m.client == nil || len(m.admins) == 0 {
		m.log.Warn().Msg("mailer skipped: missing API key or admin recipients")
		return Result{Skipped: true}
	}

	participants := ""
	if app.Participants != nil {
		participants = fmt.Sprintf("%d", *app.Participants)
	}
	note := ""
	if app.RequestNote != nil {
		note = *app.RequestNote
	}
	memo := ""
	if app.Memo != nil {
		memo = *app.Memo
	}

	subject := fmt.Sprintf("New section application - %s", section.Sport)
	body := fmt.Sprintf(
		"A new application has been received.\n\n"+
			"Applicant: %s\nApplicant email: %s\nPhone: %s\n"+
			"Sport: %s\nSection: %s\nApplication window: %s\n"+
			"Participants: %s\nRequest note: %s\nMemo: %s\n\nApplied at: %s",
		app.Name, applicantEmail, app.Phone,
		section.Sport, section.Title, formatWindow(section.ApplyStartAt, section.ApplyEndAt),
		participants, note, memo, app.CreatedAt.Format(time.RFC3339),
	)

	return m.send(ctx, m.admins, subject, body)
}

// NotifyCancellation emails the applicant that their application was cancelled.
// Used by the consumer worker, outside the request path.
func (m *Mailer) NotifyCancellation(ctx context.Context, recipient string, section *model.Section, reason string) Result {
	if m.client == nil || recipient == "" {
		m.log.Warn().Msg("mailer skipped: missing API key or recipient")
		return Result{Skipped: true}
	}

	subject := fmt.Sprintf("Application cancelled - %s", section.Title)
	body := fmt.Sprintf("Hello,\n\nYour application for \"%s\" (%s) has been cancelled.", section.Title, section.Sport)
	if reason != "" {
		body += "\nReason: " + reason
	}

	return m.send(ctx, []string{recipient}, subject, body)
}

func (m *Mailer) send(ctx context.Context, to []string, subject, body string) Result {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      to,
		Subject: subject,
		Text:    body,
	}
	if m.replyTo != "" {
		params.ReplyTo = m.replyTo
	}

	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		m.log.Warn().Err(err).Strs("to", to).Str("subject", subject).Msg("failed to send email")
		return Result{Err: err}
	}

	m.log.Info().Str("message_id", sent.Id).Strs("to", to).Str("subject", subject).Msg("email sent")
	return Result{OK: true}
}

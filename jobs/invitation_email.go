package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
)

// Mailer sends a single message. The SMTP implementation below satisfies it;
// tests swap in a recorder.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
}

// Send writes one message to the relay.
func (m SMTPMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg))
}

// InvitationEmailJob delivers queued invitation emails.
type InvitationEmailJob struct {
	Mailer  Mailer
	BaseURL string
	Logger  *slog.Logger
}

// NewInvitationEmailJob initialises the invitation email handler.
func NewInvitationEmailJob(mailer Mailer, baseURL string, logger *slog.Logger) *InvitationEmailJob {
	return &InvitationEmailJob{Mailer: mailer, BaseURL: baseURL, Logger: logger}
}

// Handle processes TaskTypeInvitationEmail tasks.
func (j *InvitationEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload InvitationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Email == "" {
		return asynq.SkipRetry
	}
	body := fmt.Sprintf("You have been invited to Pressroom. Sign up at %s/signup?email=%s", j.BaseURL, payload.Email)
	if err := j.Mailer.Send(payload.Email, "You're invited to Pressroom", body); err != nil {
		j.Logger.Error("invitation email delivery failed",
			slog.String("email", payload.Email),
			slog.Any("error", err),
		)
		return err
	}
	j.Logger.Info("invitation email sent", slog.String("email", payload.Email))
	return nil
}

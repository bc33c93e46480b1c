// Package jobs defines the background tasks processed by the worker.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeInvitationEmail delivers an invitation email.
	TaskTypeInvitationEmail = "mail:invitation"
)

// InvitationEmailPayload describes an invitation awaiting delivery.
type InvitationEmailPayload struct {
	Email     string `json:"email"`
	InvitedBy int64  `json:"invited_by"`
}

// NewInvitationEmailTask constructs the asynq task for one invitation.
func NewInvitationEmailTask(email string, invitedBy int64) (*asynq.Task, error) {
	data, err := json.Marshal(InvitationEmailPayload{Email: email, InvitedBy: invitedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeInvitationEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAccountCreated  Type = "account.created"
	TypeAccountUpdated  Type = "account.updated"
	TypeAccountDeleted  Type = "account.deleted"
	TypeGuardianLinked  Type = "guardian.linked"
	TypeGuardianUnlink  Type = "guardian.unlinked"
	TypeLogin           Type = "auth.login"
	TypeLoginFailed     Type = "auth.login_failed"
	TypeLogout          Type = "auth.logout"
	TypeTokenRefreshed  Type = "auth.refreshed"
	TypePasswordReset   Type = "auth.password_reset"
	TypePasswordChanged Type = "account.password_changed"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	ActorID   string         `json:"actor_id,omitempty"`   // who triggered the event
	SubjectID string         `json:"subject_id,omitempty"` // account the event is about
	SourceIP  string         `json:"source_ip,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

type sourceIPKey struct{}

// WithSourceIP records the client address of the request on ctx.
func WithSourceIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, sourceIPKey{}, ip)
}

func New(ctx context.Context, typ Type, actorID string, subjectID string, payload map[string]any) Event {
	ip, _ := ctx.Value(sourceIPKey{}).(string)
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		ActorID:   actorID,
		SubjectID: subjectID,
		SourceIP:  ip,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

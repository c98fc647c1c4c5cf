package audit

import (
	"context"
	"fmt"
	"time"

	"inventra.io/internal/auth"
	"inventra.io/internal/ids"
)

const (
	ActionLogin           = "auth.login"
	ActionLogout          = "auth.logout"
	ActionUserCreated     = "user.created"
	ActionUserDeactivated = "user.deactivated"
	ActionUserActivated   = "user.activated"
)

// Entry is a single audit record.
type Entry struct {
	ID         string
	OccurredAt time.Time
	Action     string
	UserID     string
	ActorID    string
	EntityType string
	EntityID   string
	IP         string
	UserAgent  string
	Details    map[string]any
}

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

var _ auth.AuditRecorder = (*Recorder)(nil)

// Recorder logs every event and, when a sink is configured, persists it.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder returns a Recorder. sink may be nil for log-only auditing.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

func (r *Recorder) RecordLogin(ctx context.Context, userID string, client auth.ClientInfo) error {
	return r.record(ctx, Entry{
		Action:     ActionLogin,
		UserID:     userID,
		ActorID:    userID,
		EntityType: "user",
		EntityID:   userID,
		IP:         client.IP,
		UserAgent:  client.UserAgent,
	})
}

func (r *Recorder) RecordLogout(ctx context.Context, userID string, client auth.ClientInfo) error {
	return r.record(ctx, Entry{
		Action:     ActionLogout,
		UserID:     userID,
		ActorID:    userID,
		EntityType: "user",
		EntityID:   userID,
		IP:         client.IP,
		UserAgent:  client.UserAgent,
	})
}

func (r *Recorder) RecordUserCreated(ctx context.Context, ev auth.UserCreatedEvent) error {
	return r.record(ctx, Entry{
		Action:     ActionUserCreated,
		UserID:     ev.UserID,
		ActorID:    ev.ActorUserID,
		EntityType: "user",
		EntityID:   ev.UserID,
		IP:         ev.Client.IP,
		UserAgent:  ev.Client.UserAgent,
		Details: map[string]any{
			"email":    ev.Email,
			"username": ev.Username,
		},
	})
}

func (r *Recorder) RecordStatusChange(ctx context.Context, userID, actorUserID string, active bool, client auth.ClientInfo) error {
	action := ActionUserDeactivated
	if active {
		action = ActionUserActivated
	}
	return r.record(ctx, Entry{
		Action:     action,
		UserID:     userID,
		ActorID:    actorUserID,
		EntityType: "user",
		EntityID:   userID,
		IP:         client.IP,
		UserAgent:  client.UserAgent,
	})
}

func (r *Recorder) record(ctx context.Context, e Entry) error {
	e.ID = ids.New()
	e.OccurredAt = r.now().UTC()

	fields := map[string]any{
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
	}
	if e.ActorID != "" {
		fields["actor_id"] = e.ActorID
	}
	if e.IP != "" {
		fields["ip"] = e.IP
	}
	if e.UserAgent != "" {
		fields["user_agent"] = e.UserAgent
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	if err := LogEvent(ctx, e.Action, fields); err != nil {
		return err
	}
	if r.sink == nil {
		return nil
	}
	if err := r.sink.Append(ctx, e); err != nil {
		return fmt.Errorf("append audit entry %s: %w", e.Action, err)
	}
	return nil
}

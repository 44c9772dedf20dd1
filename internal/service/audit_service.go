package service

import (
	"context"
	"log/slog"
	"time"

	"scribex-api/internal/event"
	"scribex-api/internal/model"
	"scribex-api/pkg/apierror"
)

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Consume persists bus events until the channel closes.
func (s *AuditService) Consume(events <-chan event.Event) {
	for e := range events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Log(ctx, entryFromEvent(e)); err != nil {
			slog.Error("audit write failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}

// Start subscribes to the bus and returns the unsubscribe function.
func (s *AuditService) Start(bus event.Bus) func() {
	events, unsubscribe := bus.Subscribe()
	go s.Consume(events)
	return unsubscribe
}

func (s *AuditService) Query(ctx context.Context, caller *model.Principal, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if !caller.IsAdmin() {
		return nil, model.Meta{}, apierror.Forbidden("")
	}
	query.Page, query.Limit = normalizePage(query.Page, query.Limit)
	return s.store.Query(ctx, query)
}

func entryFromEvent(e event.Event) model.AuditEntry {
	return model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		ActorID:    e.ActorID,
		SubjectID:  e.SubjectID,
		IP:         e.SourceIP,
		Details:    e.Payload,
	}
}

package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scribex-api/internal/event"
	"scribex-api/internal/model"
	"scribex-api/internal/repository"
	"scribex-api/pkg/apierror"
)

func TestAuditServicePersistsEvents(t *testing.T) {
	t.Parallel()

	store := &repository.MockAuditRepository{}
	done := make(chan model.AuditEntry, 1)
	store.On("Log", mock.Anything, mock.AnythingOfType("model.AuditEntry")).
		Run(func(args mock.Arguments) { done <- args.Get(1).(model.AuditEntry) }).
		Return(nil)

	bus := event.NewBus()
	svc := NewAuditService(store)
	unsubscribe := svc.Start(bus)
	t.Cleanup(unsubscribe)

	ctx := event.WithSourceIP(context.Background(), "192.0.2.10")
	bus.Publish(event.New(ctx, event.TypeAccountDeleted, "admin-1", "acct-9", map[string]any{"reason": "graduated"}))

	select {
	case entry := <-done:
		assert.Equal(t, "account.deleted", entry.Action)
		assert.Equal(t, "admin-1", entry.ActorID)
		assert.Equal(t, "acct-9", entry.SubjectID)
		assert.Equal(t, "192.0.2.10", entry.IP)
		assert.Equal(t, "graduated", entry.Details["reason"])
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not written")
	}
}

func TestAuditServiceQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &repository.MockAuditRepository{}
	svc := NewAuditService(store)

	store.On("Query", ctx, model.AuditQuery{Action: "auth.login", Page: 1, Limit: defaultPageLimit}).
		Return([]model.AuditEntry{{ID: 1, Action: "auth.login"}}, model.NewMeta(1, defaultPageLimit, 1), nil)

	entries, meta, err := svc.Query(ctx, adminPrincipal(), model.AuditQuery{Action: "auth.login"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, meta.Total)

	_, _, err = svc.Query(ctx, &model.Principal{Role: model.RoleTeacher}, model.AuditQuery{})
	requireAPIError(t, err, http.StatusForbidden, apierror.CodeForbidden)
}

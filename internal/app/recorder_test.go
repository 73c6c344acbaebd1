package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/shared"
)

type memorySink struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	err     error
}

func (s *memorySink) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.entries = append(s.entries, log)
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ref(id int64) *int64 { return &id }

func TestDecisionRecorderAuditsMutationDenials(t *testing.T) {
	sink := &memorySink{}
	rec := &DecisionRecorder{Audit: sink, Logger: discardLogger()}
	ctx := context.Background()

	rec.RecordDecision(ctx, rbac.Decision{Effect: rbac.Allow, Permission: rbac.PermManageUsers, ActorID: 1, TargetID: ref(2)})
	rec.RecordDecision(ctx, rbac.Decision{Effect: rbac.Deny, Reason: rbac.ReasonNotSubordinate, Permission: rbac.PermApproveLeave, ActorID: 1, TargetID: ref(2)})
	require.Empty(t, sink.entries)

	rec.RecordDecision(ctx, rbac.Decision{Effect: rbac.Deny, Reason: rbac.ReasonHierarchyViolation, Permission: rbac.PermManageUsers, ActorID: 3, TargetID: ref(1)})
	rec.RecordDecision(ctx, rbac.Decision{Effect: rbac.Deny, Reason: rbac.ReasonStructuralError, Permission: rbac.PermViewReports, ActorID: 4})
	require.Len(t, sink.entries, 2)

	require.Equal(t, shared.AuditLog{
		ActorID:  3,
		Action:   "authz.deny",
		Entity:   "staff",
		EntityID: "1",
		Meta:     map[string]any{"permission": "can_manage_users", "reason": "hierarchy_violation"},
	}, sink.entries[0])
	require.Equal(t, "4", sink.entries[1].EntityID)
	require.Equal(t, "structural_error", sink.entries[1].Meta["reason"])
}

func TestDecisionRecorderSurvivesCancelledRequests(t *testing.T) {
	sink := &memorySink{}
	rec := &DecisionRecorder{Audit: sink, Logger: discardLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.RecordDecision(ctx, rbac.Decision{Effect: rbac.Deny, Reason: rbac.ReasonInactiveTarget, Permission: rbac.PermManageSchedule, ActorID: 2, TargetID: ref(4)})
	require.Len(t, sink.entries, 1)
}

func TestDecisionRecorderToleratesAuditFailures(t *testing.T) {
	rec := &DecisionRecorder{Audit: &memorySink{err: errors.New("db down")}, Logger: discardLogger()}
	require.NotPanics(t, func() {
		rec.RecordDecision(context.Background(), rbac.Decision{Effect: rbac.Deny, Reason: rbac.ReasonStructuralError, Permission: rbac.PermManageUsers, ActorID: 1})
	})

	var nilRecorder *DecisionRecorder
	require.NotPanics(t, func() {
		nilRecorder.RecordDecision(context.Background(), rbac.Decision{})
	})
	require.NotPanics(t, func() {
		(&DecisionRecorder{}).RecordDecision(context.Background(), rbac.Decision{Permission: rbac.PermManageUsers})
	})
}

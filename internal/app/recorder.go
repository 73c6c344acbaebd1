package app

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/staffline/staffline/internal/observability"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/shared"
)

// AuditSink persists audit entries. *shared.AuditLogger satisfies it.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DecisionRecorder counts every decision taken at the HTTP boundary and
// writes an audit entry for mutation denials and structural faults.
type DecisionRecorder struct {
	Metrics *observability.Metrics
	Audit   AuditSink
	Logger  *slog.Logger
}

// RecordDecision implements rbac.DecisionRecorder.
func (r *DecisionRecorder) RecordDecision(ctx context.Context, d rbac.Decision) {
	if r == nil {
		return
	}
	r.Metrics.ObserveDecision(string(d.Permission), d.Effect.String(), string(d.Reason))
	if d.Allowed() {
		return
	}

	logger := r.logger().With(
		slog.Int64("actor_id", d.ActorID),
		slog.String("permission", string(d.Permission)),
		slog.String("reason", string(d.Reason)),
	)
	if d.TargetID != nil {
		logger = logger.With(slog.Int64("target_id", *d.TargetID))
	}
	structural := d.Reason == rbac.ReasonStructuralError
	if structural {
		logger.Error("authorization hit a structural fault")
	} else {
		logger.Debug("authorization denied")
	}
	if !structural && !d.Permission.Traits().Mutation {
		return
	}
	if r.Audit == nil {
		return
	}

	entityID := strconv.FormatInt(d.ActorID, 10)
	if d.TargetID != nil {
		entityID = strconv.FormatInt(*d.TargetID, 10)
	}
	entry := shared.AuditLog{
		ActorID:  d.ActorID,
		Action:   "authz.deny",
		Entity:   "staff",
		EntityID: entityID,
		Meta: map[string]any{
			"permission": string(d.Permission),
			"reason":     string(d.Reason),
		},
	}
	// The request may already be finishing; the audit row must still land.
	if err := r.Audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("record authorization audit", slog.Any("error", err))
	}
}

func (r *DecisionRecorder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

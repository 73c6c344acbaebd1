package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/staffline/staffline/internal/directory"
	jobmetrics "github.com/staffline/staffline/internal/jobs"
)

// Fault kinds reported by the integrity scan.
const (
	FaultCycle            = "cycle"
	FaultDanglingManager  = "dangling_manager"
	FaultDanglingApprover = "dangling_approver"
	FaultInactiveManager  = "inactive_manager"
	FaultMissingRole      = "missing_role"
)

// ErrIntegrityFaults is returned by the job when FailOnFaults is set and the
// scan found anything.
var ErrIntegrityFaults = errors.New("orggraph integrity: faults found")

// IntegrityReport lists the staff ids affected by each fault kind.
type IntegrityReport struct {
	SnapshotVersion uint64             `json:"snapshot_version"`
	Faults          map[string][]int64 `json:"faults"`
}

// Total returns the number of faults across kinds.
func (r IntegrityReport) Total() int {
	n := 0
	for _, ids := range r.Faults {
		n += len(ids)
	}
	return n
}

// ScanIntegrity inspects a snapshot. Only active staff are reported for
// manager and role faults; inactive records cannot act.
func ScanIntegrity(snap *directory.Snapshot) IntegrityReport {
	report := IntegrityReport{
		SnapshotVersion: snap.Version,
		Faults: map[string][]int64{
			FaultCycle:            nil,
			FaultDanglingManager:  nil,
			FaultDanglingApprover: nil,
			FaultInactiveManager:  nil,
			FaultMissingRole:      nil,
		},
	}
	report.Faults[FaultCycle] = snap.Graph.Cycles()

	for _, rec := range snap.AllStaff() {
		if rec.ReportingTo != nil {
			manager, ok := snap.Staff(*rec.ReportingTo)
			switch {
			case !ok:
				report.Faults[FaultDanglingManager] = append(report.Faults[FaultDanglingManager], rec.ID)
			case rec.Active && !manager.Active:
				report.Faults[FaultInactiveManager] = append(report.Faults[FaultInactiveManager], rec.ID)
			}
		}
		if rec.ApprovingManagerID != nil {
			if _, ok := snap.Staff(*rec.ApprovingManagerID); !ok {
				report.Faults[FaultDanglingApprover] = append(report.Faults[FaultDanglingApprover], rec.ID)
			}
		}
		if !rec.Active {
			continue
		}
		if rec.RoleID == nil {
			report.Faults[FaultMissingRole] = append(report.Faults[FaultMissingRole], rec.ID)
			continue
		}
		if role, ok := snap.Registry.Role(*rec.RoleID); !ok || !role.Active {
			report.Faults[FaultMissingRole] = append(report.Faults[FaultMissingRole], rec.ID)
		}
	}
	return report
}

// Reloader produces a fresh directory snapshot. *directory.Store satisfies it.
type Reloader interface {
	Reload(ctx context.Context) (*directory.Snapshot, error)
}

// IntegrityJob reloads the directory and reports structural faults.
type IntegrityJob struct {
	Directory Reloader
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity scan handler.
func NewIntegrityJob(dir Reloader, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Directory: dir, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Directory == nil {
		return errors.New("orggraph integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("orggraph integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskOrgGraphIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	snap, err := j.Directory.Reload(ctx)
	if err != nil {
		return fmt.Errorf("orggraph integrity: reload: %w", err)
	}
	report := ScanIntegrity(snap)

	logger := j.logger().With(slog.Uint64("snapshot_version", report.SnapshotVersion))
	for kind, ids := range report.Faults {
		j.Metrics.SetStructuralFaults(kind, len(ids))
		if len(ids) > 0 {
			logger.Warn("org graph fault", slog.String("kind", kind), slog.Any("staff_ids", ids))
		}
	}
	logger.Info("org graph integrity scan finished", slog.Int("faults", report.Total()))

	if payload.FailOnFaults && report.Total() > 0 {
		return fmt.Errorf("%w: %d", ErrIntegrityFaults, report.Total())
	}
	return nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

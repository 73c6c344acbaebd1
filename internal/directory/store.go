package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/staffline/staffline/internal/platform/httpx"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/staff"
)

// ErrNotLoaded is returned before the first successful load.
var ErrNotLoaded = fmt.Errorf("directory: snapshot not loaded: %w", httpx.ErrUnavailable)

// ReloadObserver is notified after every reload attempt.
type ReloadObserver interface {
	ObserveReload(duration time.Duration, staffCount int, err error)
}

// Store holds the current snapshot. Reloads build a new snapshot off to the
// side and swap the pointer, so in-flight decisions keep the one they read.
type Store struct {
	source   Source
	logger   *slog.Logger
	observer ReloadObserver

	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	group   singleflight.Group
}

// NewStore constructs a Store. observer may be nil.
func NewStore(source Source, logger *slog.Logger, observer ReloadObserver) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{source: source, logger: logger, observer: observer}
}

// Reload loads a fresh snapshot. Concurrent calls share one load. On failure
// the previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	v, err, _ := s.group.Do("reload", func() (any, error) {
		start := time.Now()
		snap, err := s.load(ctx)
		if s.observer != nil {
			count := 0
			if snap != nil {
				count = len(snap.order)
			}
			s.observer.ObserveReload(time.Since(start), count, err)
		}
		if err != nil {
			s.logger.Error("directory reload failed", slog.Any("error", err))
			return nil, err
		}
		if verr := snap.Graph.Validate(); verr != nil {
			s.logger.Error("directory contains structural faults",
				slog.Any("error", verr),
				slog.Any("cycle_staff_ids", snap.Graph.Cycles()))
		}
		s.current.Store(snap)
		s.logger.Info("directory reloaded",
			slog.Uint64("version", snap.Version),
			slog.String("role_table_version", snap.Registry.Version()),
			slog.Int("staff", len(snap.order)))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (s *Store) load(ctx context.Context) (*Snapshot, error) {
	table, records, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(s.version.Add(1), table, records)
}

// Current returns the current snapshot, nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

func (s *Store) snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

// Authorize implements rbac.Authorizer.
func (s *Store) Authorize(_ context.Context, actorID int64, permission rbac.Permission, targetID *int64) (rbac.Decision, error) {
	snap, err := s.snapshot()
	if err != nil {
		return rbac.Decision{Effect: rbac.Deny, Permission: permission, ActorID: actorID, TargetID: targetID}, err
	}
	return snap.Decide(actorID, permission, targetID)
}

// EffectiveGrants implements rbac.Authorizer.
func (s *Store) EffectiveGrants(_ context.Context, actorID int64) (map[rbac.Permission]rbac.Grant, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Engine.EffectiveGrants(snap.Subject(actorID)), nil
}

// Registry returns the registry of the current snapshot.
func (s *Store) Registry(_ context.Context) (*rbac.Registry, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Registry, nil
}

// AllStaff returns every staff record of the current snapshot.
func (s *Store) AllStaff(_ context.Context) ([]staff.Staff, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.AllStaff(), nil
}

// StaffByID returns one record or staff.ErrNotFound.
func (s *Store) StaffByID(_ context.Context, id int64) (staff.Staff, error) {
	snap, err := s.snapshot()
	if err != nil {
		return staff.Staff{}, err
	}
	rec, ok := snap.Staff(id)
	if !ok {
		return staff.Staff{}, staff.ErrNotFound
	}
	return rec, nil
}

// SubordinatesOf returns the transitive reports of managerID.
func (s *Store) SubordinatesOf(_ context.Context, managerID int64) ([]int64, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Graph.SubordinatesOf(managerID)
}

// ApproverChainOf returns the approvers of staffID, nearest first.
func (s *Store) ApproverChainOf(_ context.Context, staffID int64) ([]int64, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Staff(staffID); !ok {
		return nil, staff.ErrNotFound
	}
	return snap.Graph.ApproverChainOf(staffID)
}

package perf

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/staffline/staffline/internal/directory"
	"github.com/staffline/staffline/internal/staff"
)

func ref(id int64) *int64 { return &id }

// largeDirectory builds one admin (id 1), managers 2..managers+1 reporting to
// the admin, and perTeam employees under each manager.
func largeDirectory(managers, perTeam int) []staff.Staff {
	records := []staff.Staff{{ID: 1, Name: "admin", RoleID: ref(2), Active: true}}
	next := int64(managers + 2)
	for m := 0; m < managers; m++ {
		managerID := int64(m + 2)
		records = append(records, staff.Staff{ID: managerID, Name: "manager", RoleID: ref(4), ReportingTo: ref(1), Active: true})
		for e := 0; e < perTeam; e++ {
			records = append(records, staff.Staff{ID: next, Name: "employee", RoleID: ref(5), ReportingTo: ref(managerID), Active: true})
			next++
		}
	}
	return records
}

func loadStore(tb testing.TB, records []staff.Staff) *directory.Store {
	tb.Helper()
	store := directory.NewStore(directory.StaticSource{Staff: records}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if _, err := store.Reload(context.Background()); err != nil {
		tb.Fatalf("reload: %v", err)
	}
	return store
}

// Package matrix drives the authorization engine over every combination of
// role, permission and actor/target relationship and compares the results
// with an expectation source.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/staffline/staffline/internal/rbac"
)

// Row is one evaluated combination.
type Row struct {
	Role         string          `json:"role"`
	Permission   rbac.Permission `json:"permission"`
	Relationship Relationship    `json:"relationship"`
	Method       string          `json:"method,omitempty"`
	Route        string          `json:"route,omitempty"`
	Decision     string          `json:"decision"`
	Expected     string          `json:"expected"`
	Pass         bool            `json:"pass"`
	Fault        string          `json:"fault,omitempty"`
}

// Summary aggregates a report.
type Summary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// String renders "passed/total passed (rate%)".
func (s Summary) String() string {
	return fmt.Sprintf("%d/%d passed (%.2f%%)", s.Passed, s.Total, s.PassRate)
}

// Report is the output of one verifier run.
type Report struct {
	RunID            string    `json:"run_id"`
	RoleTableVersion string    `json:"role_table_version"`
	GeneratedAt      time.Time `json:"generated_at"`
	Summary          Summary   `json:"summary"`
	Rows             []Row     `json:"rows"`
}

// Failures returns the failed rows.
func (r Report) Failures() []Row {
	var out []Row
	for _, row := range r.Rows {
		if !row.Pass {
			out = append(out, row)
		}
	}
	return out
}

// Summarize computes the summary of rows.
func Summarize(rows []Row) Summary {
	s := Summary{Total: len(rows)}
	for _, row := range rows {
		if row.Pass {
			s.Passed++
		}
	}
	s.Failed = s.Total - s.Passed
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) * 100 / float64(s.Total)
	}
	return s
}

const (
	decisionFault          = "fault"
	expectationUnspecified = "unspecified"
)

type decider interface {
	Decide(actor *rbac.Subject, permission rbac.Permission, target *rbac.Subject) (rbac.Decision, error)
}

// Verifier enumerates roles × permissions × relationships.
type Verifier struct {
	Registry *rbac.Registry
	// Permissions restricts the run; empty means the whole catalog.
	Permissions []rbac.Permission
	// Relationships restricts the run; empty means all of them.
	Relationships []Relationship
	// Expectations defaults to DefaultOutcomeTable.
	Expectations Expectation
	Routes       RouteCatalog
	// Concurrency bounds parallel combinations; zero means GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger

	newDecider func(*rbac.Registry, rbac.Relations) decider
}

type combination struct {
	role rbac.Role
	spec rbac.PermissionSpec
	rel  Relationship
}

// Run evaluates every combination. Faults inside a combination, panics
// included, become failed rows; the only error returned is context
// cancellation.
func (v *Verifier) Run(ctx context.Context) (Report, error) {
	if v.Registry == nil {
		return Report{}, errors.New("matrix: registry is required")
	}
	combos := v.combinations()
	rows := make([]Row, len(combos))
	targetRole := lowestAuthority(v.Registry.Roles())

	limit := v.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range combos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = v.evaluate(c, targetRole)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		RunID:            uuid.NewString(),
		RoleTableVersion: v.Registry.Version(),
		GeneratedAt:      time.Now().UTC(),
		Rows:             rows,
		Summary:          Summarize(rows),
	}
	if v.Logger != nil {
		v.Logger.Info("permission matrix verified",
			slog.String("run_id", report.RunID),
			slog.Int("total", report.Summary.Total),
			slog.Int("failed", report.Summary.Failed))
	}
	return report, nil
}

func (v *Verifier) combinations() []combination {
	perms := v.Permissions
	if len(perms) == 0 {
		perms = rbac.PermissionKeys()
	}
	rels := v.Relationships
	if len(rels) == 0 {
		rels = Relationships()
	}
	roles := v.Registry.Roles()
	out := make([]combination, 0, len(roles)*len(perms)*len(rels))
	for _, role := range roles {
		for _, key := range perms {
			spec, ok := rbac.Lookup(key)
			if !ok {
				spec = rbac.PermissionSpec{Key: key, Kind: rbac.KindUnknown}
			}
			for _, rel := range rels {
				out = append(out, combination{role: role, spec: spec, rel: rel})
			}
		}
	}
	return out
}

func (v *Verifier) evaluate(c combination, targetRole *int64) (row Row) {
	row = Row{
		Role:         c.role.Name,
		Permission:   c.spec.Key,
		Relationship: c.rel,
		Expected:     expectationUnspecified,
	}
	defer func() {
		if r := recover(); r != nil {
			row.Decision = decisionFault
			row.Fault = fmt.Sprintf("panic: %v", r)
			row.Pass = false
		}
	}()
	if route, ok := v.Routes[c.spec.Key]; ok {
		row.Method = route.Method
		row.Route = route.Pattern
	}

	grant := v.Registry.Grant(c.role.ID, c.spec.Key)
	expectations := v.Expectations
	if expectations == nil {
		expectations = DefaultOutcomeTable()
	}
	expected, ok := expectations.Expect(Case{Role: c.role, Permission: c.spec, Grant: grant, Relationship: c.rel})
	if ok {
		row.Expected = expected.String()
	}

	fixture, err := BuildFixture(c.rel, c.role.ID, targetRole)
	if err != nil {
		row.Decision = decisionFault
		row.Fault = err.Error()
		return row
	}
	engine := v.engineFor(fixture)
	d, err := engine.Decide(fixture.Actor, c.spec.Key, fixture.Target)
	row.Decision = d.Outcome().String()
	if err != nil {
		row.Fault = err.Error()
	}
	row.Pass = ok && err == nil && d.Outcome() == expected
	return row
}

func (v *Verifier) engineFor(f Fixture) decider {
	if v.newDecider != nil {
		return v.newDecider(v.Registry, f.Graph)
	}
	return rbac.NewEngine(v.Registry, f.Graph)
}

// lowestAuthority returns the id of the role with the largest hierarchy level.
func lowestAuthority(roles []rbac.Role) *int64 {
	if len(roles) == 0 {
		return nil
	}
	id := roles[len(roles)-1].ID
	return &id
}

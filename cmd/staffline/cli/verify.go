package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/rbac/matrix"
)

// Exit codes of the verify-matrix command.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitFailures = 10
)

// VerifyOptions defines the flags of the verify-matrix command.
type VerifyOptions struct {
	RolesPath   string
	ExpectPath  string
	Permissions []string
	Format      string
	OutPath     string
	Concurrency int
	Stdout      io.Writer
	Stderr      io.Writer
}

// ParseVerifyArgs parses verify-matrix flags. pflag.ErrHelp is returned
// untouched after usage has been printed to stderr.
func ParseVerifyArgs(args []string, stderr io.Writer) (VerifyOptions, error) {
	var opts VerifyOptions
	fs := pflag.NewFlagSet("verify-matrix", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.RolesPath, "roles", "", "role table YAML (default: embedded roles)")
	fs.StringVar(&opts.ExpectPath, "expect", "", "YAML file pinning expected outcomes of individual rows")
	fs.StringSliceVar(&opts.Permissions, "permissions", nil, "comma separated permission keys (default: whole catalog)")
	fs.StringVar(&opts.Format, "format", "human", "output format: human, json or csv")
	fs.StringVarP(&opts.OutPath, "out", "o", "", "write the report to this file instead of stdout")
	fs.IntVar(&opts.Concurrency, "concurrency", 0, "parallel combinations (default: GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		return VerifyOptions{}, err
	}
	if fs.NArg() > 0 {
		return VerifyOptions{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	switch opts.Format {
	case "human", "json", "csv":
	default:
		return VerifyOptions{}, fmt.Errorf("--format must be human, json or csv, got %q", opts.Format)
	}
	return opts, nil
}

// VerifyCommand runs the permission matrix verifier. It returns ExitOK when
// every row passes, ExitFailures when some rows fail and ExitUsage when the
// inputs cannot be loaded.
func VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	fail := func(format string, args ...any) int {
		_, _ = fmt.Fprintf(opts.Stderr, "verify-matrix: "+format+"\n", args...)
		return ExitUsage
	}

	table, err := rbac.FileRoleSource{Path: opts.RolesPath}.LoadRoleTable(ctx)
	if err != nil {
		return fail("%v", err)
	}
	registry, err := rbac.NewRegistry(table)
	if err != nil {
		return fail("%v", err)
	}

	var expectations matrix.Expectation = matrix.DefaultOutcomeTable()
	if opts.ExpectPath != "" {
		rows, err := matrix.LoadRowExpectations(opts.ExpectPath, expectations)
		if err != nil {
			return fail("%v", err)
		}
		expectations = rows
	}

	perms := make([]rbac.Permission, 0, len(opts.Permissions))
	for _, raw := range opts.Permissions {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		perms = append(perms, rbac.Permission(raw))
	}

	verifier := &matrix.Verifier{
		Registry:     registry,
		Permissions:  perms,
		Expectations: expectations,
		Routes:       matrix.DefaultRoutes(),
		Concurrency:  opts.Concurrency,
	}
	report, err := verifier.Run(ctx)
	if err != nil {
		return fail("%v", err)
	}

	out := opts.Stdout
	if opts.OutPath != "" {
		f, err := os.Create(opts.OutPath)
		if err != nil {
			return fail("%v", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeReport(out, opts.Format, report); err != nil {
		return fail("write report: %v", err)
	}
	if opts.OutPath != "" {
		_, _ = fmt.Fprintf(opts.Stdout, "%s written to %s\n", report.Summary, opts.OutPath)
	}
	if report.Summary.Failed > 0 {
		return ExitFailures
	}
	return ExitOK
}

func writeReport(w io.Writer, format string, report matrix.Report) error {
	switch format {
	case "json":
		return matrix.WriteJSON(w, report)
	case "csv":
		return matrix.WriteCSV(w, report)
	case "human", "":
		return renderHuman(w, report)
	default:
		return errors.New("unknown format " + format)
	}
}

func renderHuman(w io.Writer, report matrix.Report) error {
	title := cases.Title(language.English)
	label := func(s string) string {
		return title.String(strings.ReplaceAll(s, "_", " "))
	}

	if _, err := fmt.Fprintf(w, "Permission matrix for role table %s (run %s)\n", report.RoleTableVersion, report.RunID); err != nil {
		return err
	}
	failures := report.Failures()
	if len(failures) == 0 {
		_, _ = fmt.Fprintln(w, "All combinations match their expected outcome.")
	} else {
		_, _ = fmt.Fprintf(w, "%d mismatch(es):\n", len(failures))
		for _, row := range failures {
			_, _ = fmt.Fprintf(w, " - %s / %s / %s: got %s, expected %s",
				label(row.Role), row.Permission, label(string(row.Relationship)), row.Decision, row.Expected)
			if row.Fault != "" {
				_, _ = fmt.Fprintf(w, " (%s)", row.Fault)
			}
			_, _ = fmt.Fprintln(w)
		}
	}
	_, err := fmt.Fprintf(w, "Summary: %s\n", report.Summary)
	return err
}

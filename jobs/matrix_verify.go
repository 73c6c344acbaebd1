package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/staffline/staffline/internal/jobs"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/rbac/matrix"
	"github.com/staffline/staffline/internal/roles"
)

// MatrixVerifyJob runs the permission matrix verifier against the live role
// table and writes the report to ReportDir.
type MatrixVerifyJob struct {
	Roles     roles.RegistryProvider
	ReportDir string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewMatrixVerifyJob initialises the matrix verification handler.
func NewMatrixVerifyJob(provider roles.RegistryProvider, reportDir string, logger *slog.Logger, metrics *jobmetrics.Metrics) *MatrixVerifyJob {
	return &MatrixVerifyJob{
		Roles:     provider,
		ReportDir: reportDir,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one verifier run. Failed rows are reported, not returned
// as an error; only infrastructure problems fail the task.
func (j *MatrixVerifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Roles == nil {
		return errors.New("matrix verify: handler not configured")
	}
	var payload MatrixVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("matrix verify: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	format := payload.Format
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		return fmt.Errorf("matrix verify: unknown format %q: %w", format, asynq.SkipRetry)
	}
	perms := make([]rbac.Permission, 0, len(payload.Permissions))
	for _, raw := range payload.Permissions {
		perms = append(perms, rbac.Permission(raw))
	}

	tracker := j.Metrics.Track(TaskMatrixVerify)
	defer func() {
		err = tracker.End(err)
	}()

	registry, err := j.Roles.Registry(ctx)
	if err != nil {
		return fmt.Errorf("matrix verify: load roles: %w", err)
	}
	verifier := &matrix.Verifier{
		Registry:    registry,
		Permissions: perms,
		Routes:      matrix.DefaultRoutes(),
		Logger:      j.logger(),
	}
	report, err := verifier.Run(ctx)
	if err != nil {
		return fmt.Errorf("matrix verify: run: %w", err)
	}
	j.Metrics.SetMatrixFailures(report.Summary.Failed)

	path, err := j.write(report, format)
	if err != nil {
		return err
	}
	logger := j.logger().With(
		slog.String("run_id", report.RunID),
		slog.String("report", path),
		slog.String("summary", report.Summary.String()),
	)
	if report.Summary.Failed > 0 {
		for _, row := range report.Failures() {
			logger.Warn("matrix row failed",
				slog.String("role", row.Role),
				slog.String("permission", string(row.Permission)),
				slog.String("relationship", string(row.Relationship)),
				slog.String("decision", row.Decision),
				slog.String("expected", row.Expected))
		}
	}
	logger.Info("permission matrix report written")
	return nil
}

func (j *MatrixVerifyJob) write(report matrix.Report, format string) (string, error) {
	if err := os.MkdirAll(j.ReportDir, 0o755); err != nil {
		return "", fmt.Errorf("matrix verify: report dir: %w", err)
	}
	name := fmt.Sprintf("matrix-%s-%s.%s", j.now().Format("20060102T150405Z"), report.RunID[:8], format)
	path := filepath.Join(j.ReportDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("matrix verify: create report: %w", err)
	}
	var write func(io.Writer, matrix.Report) error = matrix.WriteJSON
	if format == "csv" {
		write = matrix.WriteCSV
	}
	if err := write(f, report); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("matrix verify: write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("matrix verify: close report: %w", err)
	}
	return path, nil
}

func (j *MatrixVerifyJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *MatrixVerifyJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/staffline/staffline/cmd/staffline/cli"
	"github.com/staffline/staffline/internal/app"
	"github.com/staffline/staffline/internal/directory"
	"github.com/staffline/staffline/internal/observability"
	"github.com/staffline/staffline/internal/platform/cache"
	"github.com/staffline/staffline/internal/platform/db"
	"github.com/staffline/staffline/internal/rbac"
	"github.com/staffline/staffline/internal/roles"
	"github.com/staffline/staffline/internal/shared"
	"github.com/staffline/staffline/internal/staff"
	"github.com/staffline/staffline/jobs"
)

const usage = `usage: staffline [command]

commands:
  serve                 run the authorization API (default)
  verify-matrix [flags] verify the permission matrix of a role table
  jobs trigger <name>   enqueue orggraph:integrity or rbac:matrix_verify
  jobs stats            show the default queue state
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		os.Exit(serve(ctx))
	case "verify-matrix":
		opts, err := cli.ParseVerifyArgs(args, os.Stderr)
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(cli.ExitOK)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "verify-matrix: %v\n", err)
			os.Exit(cli.ExitUsage)
		}
		os.Exit(cli.VerifyCommand(ctx, opts))
	case "jobs":
		os.Exit(runJobs(ctx, args))
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(cli.ExitUsage)
	}
}

func serve(ctx context.Context) int {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return 0
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis("staffline-api"))
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := app.NewDirectoryStore(cfg, pool, logger, metrics)
	if _, err := store.Reload(ctx); err != nil {
		// Requests are answered with 503 until a reload succeeds.
		logger.Error("initial directory load", slog.Any("error", err))
	}

	invalidator := directory.NewInvalidator(redisClient, cfg.DirectoryChannel, store, logger)
	go func() {
		if err := invalidator.Run(ctx); err != nil {
			logger.Error("directory invalidation", slog.Any("error", err))
		}
	}()
	if cfg.RoleTableWatch && cfg.RoleSource == app.RoleSourceFile {
		watcher := directory.RoleFileWatcher{Path: cfg.RoleTablePath, Store: store, Logger: logger}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("role table watcher", slog.Any("error", err))
			}
		}()
	}

	recorder := &app.DecisionRecorder{
		Metrics: metrics,
		Audit:   shared.NewAuditLogger(pool),
		Logger:  logger,
	}
	rbacMiddleware := rbac.Middleware{Authorizer: store, Recorder: recorder, Logger: logger}

	redisOpts := cfg.Redis("").AsynqOpt()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         shared.NewSessionStore(redisClient, cfg.SessionTTL),
		Metrics:          metrics,
		Directory:        store,
		RBACHandler:      rbac.NewHandler(logger, store, rbacMiddleware),
		DirectoryHandler: directory.NewHandler(logger, store, invalidator, rbacMiddleware),
		StaffHandler:     staff.NewHandler(logger, store, rbacMiddleware),
		RolesHandler:     roles.NewHandler(logger, store, rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
		RequestLogging:   !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return 1
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func runJobs(ctx context.Context, args []string) int {
	if app.InTestMode() {
		return 0
	}
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return cli.ExitUsage
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return cli.ExitUsage
	}
	jobsCLI := cli.NewJobsCLI(cfg.Redis("").AsynqOpt())
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: exactly one job name is required")
			return cli.ExitUsage
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue()
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return cli.ExitUsage
	}
	return 0
}

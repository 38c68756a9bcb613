package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/pocketledger/pocketledger/cmd/pocketledger/cli"
	"github.com/pocketledger/pocketledger/internal/app"
	"github.com/pocketledger/pocketledger/internal/audit"
	audithttp "github.com/pocketledger/pocketledger/internal/audit/http"
	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/internal/categories"
	"github.com/pocketledger/pocketledger/internal/expenses"
	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/observability"
	"github.com/pocketledger/pocketledger/internal/platform/cache"
	"github.com/pocketledger/pocketledger/internal/platform/db"
	"github.com/pocketledger/pocketledger/internal/ratelimit"
	"github.com/pocketledger/pocketledger/internal/shared"
	"github.com/pocketledger/pocketledger/internal/token"
	"github.com/pocketledger/pocketledger/jobs"
)

const usage = `usage: pocketledger [command]

commands:
  serve                      run the HTTP API (default)
  migrate                    apply pending schema migrations
  jobs stats [-json]         print queue statistics
  jobs prune -days N         enqueue an audit log prune
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("server stopped", slog.Any("error", err))
			return 1
		}
		return 0
	case "migrate":
		return cli.MigrateCommand(ctx, cli.MigrateOptions{DSN: cfg.PGDSN, Stdout: stdout, Stderr: stderr})
	case "jobs":
		return jobsCommand(ctx, cfg, args, stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.AsynqRedis())
	defer func() { _ = jobsCLI.Close() }()

	fs := flag.NewFlagSet("jobs "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	switch args[0] {
	case "stats":
		jsonOut := fs.Bool("json", false, "print JSON")
		queues := fs.String("queues", "", "comma separated queue names")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		var names []string
		if *queues != "" {
			names = strings.Split(*queues, ",")
		}
		return jobsCLI.StatsCommand(cli.StatsOptions{Queues: names, JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	case "prune":
		days := fs.Int("days", cfg.AuditRetentionDays, "retention in days")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.TriggerPrune(ctx, *days)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs prune: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("rate limit store unreachable, requests are allowed until it recovers",
			slog.String("addr", cfg.RedisAddr), slog.Any("error", err))
	} else {
		logger.Info("rate limit store reachable", slog.String("addr", cfg.RedisAddr))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	issuer, err := token.NewIssuer(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.New(ratelimit.NewRedisStore(redisClient, ""), ratelimit.Config{
		Limit:        cfg.RateLimitRequests,
		Window:       cfg.RateLimitPeriod,
		StoreTimeout: cfg.RateLimitStoreTimeout,
	})
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	var (
		auditor    shared.Auditor = shared.NewAuditLogger(pool)
		jobHandler *jobs.Handler
	)
	if cfg.AuditAsync {
		client := jobs.NewClient(cfg.AsynqRedis())
		defer func() { _ = client.Close() }()
		inspector := asynq.NewInspector(cfg.AsynqRedis())
		defer func() { _ = inspector.Close() }()
		auditor = jobs.NewAuditEnqueuer(client)
		jobHandler = jobs.NewHandler(inspector, logger)
		logger.Info("audit entries are delivered through the job queue")
	}

	authService := auth.NewService(auth.NewRepository(pool), issuer, auditor, logger)
	requireUser := identity.RequireUser(authService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Resolver:        identity.NewResolver(issuer, logger),
		Limiter:         limiter,
		Metrics:         metrics,
		RequireUser:     requireUser,
		AuthHandler:     auth.NewHandler(logger, authService, requireUser, cfg.LoginRateLimit),
		CategoryHandler: categories.NewHandler(logger, categories.NewService(categories.NewRepository(pool), auditor, logger)),
		ExpenseHandler:  expenses.NewHandler(logger, expenses.NewService(expenses.NewRepository(pool), auditor, logger)),
		AuditHandler:    audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:      jobHandler,
		AccessLog:       true,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/example/eventflow/internal/application"
	"github.com/example/eventflow/internal/autosave"
	"github.com/example/eventflow/internal/config"
	httptransport "github.com/example/eventflow/internal/http"
	"github.com/example/eventflow/internal/live"
	"github.com/example/eventflow/internal/logging"
	"github.com/example/eventflow/internal/persistence/sqlite"
	"github.com/example/eventflow/internal/persistence/sqlite/migration"
)

const (
	liveBufferSize        = 16
	sessionSweepInterval  = time.Hour
	shutdownTimeout       = 10 * time.Second
	finalAutosaveDeadline = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "eventflow: %v\n", err)
		os.Exit(1)
	}
}

// options holds the command-line overrides. Unset flags leave the
// environment configuration alone.
type options struct {
	port        int
	dsn         string
	environment string
	seedDemo    bool

	flags *pflag.FlagSet
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("eventflow", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.IntVarP(&opts.port, "port", "p", 0, "HTTP port (overrides EVENTFLOW_HTTP_PORT)")
	flagSet.StringVar(&opts.dsn, "sqlite-dsn", "", "SQLite DSN (overrides EVENTFLOW_SQLITE_DSN)")
	flagSet.StringVar(&opts.environment, "env", "", "development, production or test (overrides EVENTFLOW_ENV)")
	flagSet.BoolVar(&opts.seedDemo, "seed-demo", false, "create the demo accounts on startup")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	opts.flags = flagSet
	return opts, nil
}

// apply overlays the flags that were set explicitly onto cfg.
func (o options) apply(cfg config.Config) (config.Config, error) {
	if o.flags == nil {
		return cfg, nil
	}
	if o.flags.Changed("port") {
		if o.port <= 0 || o.port > 65535 {
			return cfg, fmt.Errorf("invalid --port %d", o.port)
		}
		cfg.HTTPPort = o.port
	}
	if o.flags.Changed("sqlite-dsn") {
		if o.dsn == "" {
			return cfg, errors.New("--sqlite-dsn must not be empty")
		}
		cfg.SQLiteDSN = o.dsn
	}
	if o.flags.Changed("env") {
		env, err := config.ParseEnvironment(o.environment)
		if err != nil {
			return cfg, err
		}
		cfg.Environment = env
	}
	if o.flags.Changed("seed-demo") {
		cfg.SeedDemo = o.seedDemo
	}
	return cfg, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg, err = opts.apply(cfg); err != nil {
		return err
	}

	logger := logging.New(stdout, cfg.Development(), cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	return srv.serve(ctx)
}

// app is the wired process: storage, services, background workers
// and the HTTP handler.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *sqlite.Store
	hub     *live.Hub
	flusher *autosave.Flusher
	handler http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	hub := live.NewHub(liveBufferSize, logger)
	codes, err := application.NewQRIndex(store.Attendees, cfg.QRCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build ticket index: %w", err)
	}

	permissionService := application.NewPermissionServiceWithLogger(store.Users, store.Permissions, cfg.RevocationPolicy, now, logger)
	authService := application.NewAuthServiceWithLogger(store.Users, store.Sessions, permissionService, application.HashPassword, application.VerifyPassword, tokenGenerator, now, cfg.SessionTTL, logger)
	userService := application.NewUserServiceWithLogger(store.Users, now, logger)
	rules := application.EventRules{LowAvailabilityThreshold: cfg.LowAvailabilityThreshold, ClosingWindow: cfg.RegistrationClosingWindow}
	eventService := application.NewEventServiceWithLogger(store.Events, store.Attendees, hub, rules, idGenerator, now, logger)
	attendeeService := application.NewAttendeeServiceWithLogger(store.Events, store.Attendees, codes, hub, idGenerator, tokenGenerator, now, logger)
	checkInService := application.NewCheckInServiceWithLogger(store.Events, store.Attendees, codes, hub, cfg.ActivityLogSize, now, logger)
	draftService := application.NewDraftServiceWithLogger(autosave.NewBuffer(), store.Drafts, eventService, now, logger)

	stores := application.RepositoryStores(store.Preferences, now)
	if cfg.PreferencesDir != "" {
		stores = application.FileStores(cfg.PreferencesDir)
	}
	preferenceService := application.NewPreferenceServiceWithLogger(stores, logger)
	diagnosticsService := application.NewDiagnosticsService(authService, store.Ping, config.Variables, string(cfg.Environment), nil, now, logger)

	if cfg.SeedDemo || cfg.Development() {
		if _, err := application.SeedDemoAccounts(ctx, store.Users, application.HashPassword, idGenerator, now, logger); err != nil {
			hub.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to seed demo accounts: %w", err)
		}
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:        httptransport.NewAuthHandler(authService, !cfg.Development(), logger),
		Users:       httptransport.NewUserHandler(userService, permissionService, logger),
		Events:      httptransport.NewEventHandler(eventService, logger),
		Attendees:   httptransport.NewAttendeeHandler(attendeeService, logger),
		CheckIns:    httptransport.NewCheckInHandler(checkInService, hub, logger),
		Drafts:      httptransport.NewDraftHandler(draftService, logger),
		Preferences: httptransport.NewPreferenceHandler(preferenceService, logger),
		Diagnostics: httptransport.NewDiagnosticsHandler(diagnosticsService, logger),
		Session:     httptransport.RequireSession(authService, logger),
		Development: cfg.Development(),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recover(logger),
		},
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		hub:     hub,
		flusher: autosave.NewFlusher(draftService.Buffer(), draftService.SaveEntry, cfg.AutosaveInterval, logger),
		handler: router,
	}, nil
}

// serve listens on the configured port and runs serveOn.
func (a *app) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return a.serveOn(ctx, ln)
}

// serveOn runs the HTTP server and the background workers until ctx is done.
// In-flight requests drain before buffered drafts are flushed one last time.
func (a *app) serveOn(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		a.flusher.Run(workerCtx, finalAutosaveDeadline)
	}()
	go a.sweepSessions(workerCtx, sessionSweepInterval)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		// Live streams only end when their subscription closes.
		a.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("eventflow API listening", "addr", ln.Addr().String(), "environment", a.cfg.Environment)
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		// Serve returns as soon as Shutdown starts; handlers may still be running.
		<-drained
	}

	cancelWorkers()
	<-flushed

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

func (a *app) sweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.store.Sessions.DeleteExpiredSessions(ctx, time.Now()); err != nil && ctx.Err() == nil {
				a.logger.Warn("expired session sweep failed", "error", err)
			}
		}
	}
}

func (a *app) close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

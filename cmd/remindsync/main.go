// RemindSync is a daemon that keeps a local reminder replica and a remote
// reminder service in sync bidirectionally using last-write-wins conflict
// resolution.
//
// Usage:
//
//	remindsync daemon [--config <path>]     # start the periodic sync loop
//	remindsync sync-once [--config <path>]  # single sync pass then exit
//	remindsync add --title <t> [flags]      # create a reminder locally
//	remindsync list                         # print the local replica
//	remindsync remove <id>                  # tombstone a reminder
//	remindsync status                       # show config & replica state
//	remindsync version                      # print version
//
// Offline mutations (add, remove) are queued in the local replica and pushed
// on the next sync pass; each mutating command also attempts one immediate
// best-effort pass.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/njoerd114/remindsync/internal/api"
	"github.com/njoerd114/remindsync/internal/attach"
	"github.com/njoerd114/remindsync/internal/config"
	"github.com/njoerd114/remindsync/internal/model"
	"github.com/njoerd114/remindsync/internal/store"
	syncp "github.com/njoerd114/remindsync/internal/sync"
	"github.com/njoerd114/remindsync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "daemon":
		return runSync(os.Args[2:], true)
	case "sync-once":
		return runSync(os.Args[2:], false)
	case "add":
		return runAdd(os.Args[2:])
	case "list":
		return runList(os.Args[2:])
	case "remove":
		return runRemove(os.Args[2:])
	case "status":
		return runStatus()
	case "version":
		fmt.Println("remindsync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'remindsync' for usage", cmd)
	}
}

func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "RemindSync — keep local reminders and a reminder service in sync")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  remindsync daemon [--config ...]      Run as continuous daemon")
	fmt.Fprintln(os.Stderr, "  remindsync sync-once [--config ...]   Single sync pass then exit")
	fmt.Fprintln(os.Stderr, "  remindsync add --title <t> [flags]    Create a reminder locally")
	fmt.Fprintln(os.Stderr, "  remindsync list                       Print the local replica")
	fmt.Fprintln(os.Stderr, "  remindsync remove <id>                Tombstone a reminder")
	fmt.Fprintln(os.Stderr, "  remindsync status                     Show config & replica state")
	fmt.Fprintln(os.Stderr, "  remindsync version                    Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "No config file found at %s.\n", cfgPath)
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Shared setup ------------------------------------------------------------

// app bundles the components every command needs.
type app struct {
	cfg    *config.Config
	store  *store.Store
	client *api.Client
	engine *syncp.Engine
	log    *slog.Logger
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("closing replica DB", "error", err)
	}
}

// newApp loads the config and wires up the replica, API client, and engine.
func newApp(cfgPath string, verbose bool) (*app, error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}

	dbPath := filepath.Join(cfg.DataDir, "reminders.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening replica DB at %q: %w", dbPath, err)
	}

	codec, err := attach.NewCodec(filepath.Join(cfg.DataDir, "attachments"), logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("preparing attachment directory: %w", err)
	}

	client := api.NewClient(cfg.ServerURL, cfg.APIToken, codec, logger)
	engine := syncp.NewEngine(st, client, logger)

	return &app{cfg: cfg, store: st, client: client, engine: engine, log: logger}, nil
}

// commonFlags parses the flags shared by every subcommand and returns the
// remaining arguments.
func commonFlags(name string, args []string) (cfgPath string, verbose bool, rest []string, err error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgFlag := fs.String("config", defaultCfg, "path to config.yaml")
	verboseFlag := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return "", false, nil, err
	}
	return *cfgFlag, *verboseFlag, fs.Args(), nil
}

// --- daemon / sync-once ------------------------------------------------------

func runSync(args []string, daemon bool) error {
	cfgPath, verbose, _, err := commonFlags("sync", args)
	if err != nil {
		return err
	}

	a, err := newApp(cfgPath, verbose)
	if err != nil {
		return err
	}
	defer a.close()
	a.log.Info("config loaded",
		"server_url", a.cfg.ServerURL,
		"poll_interval", a.cfg.PollInterval,
		"data_dir", a.cfg.DataDir,
	)

	// Telemetry is opt-in; a broken collector never blocks syncing.
	if a.cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
			Insecure:     a.cfg.Telemetry.Insecure,
			ServiceName:  a.cfg.Telemetry.ServiceName,
			Headers:      a.cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			a.log.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			a.log.Info("telemetry enabled", "endpoint", a.cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					a.log.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if !daemon {
		a.log.Info("running single sync pass")
		res := a.engine.Sync(ctx)
		if !res.Success {
			return fmt.Errorf("sync failed: %s", res.Message)
		}
		fmt.Println(res.Message)
		return nil
	}

	a.log.Info("daemon starting", "poll_interval", a.cfg.PollInterval)
	sched := syncp.NewScheduler(a.engine, a.client, a.cfg.PollInterval, a.log)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync scheduler: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}

// --- add ---------------------------------------------------------------------

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	title := fs.String("title", "", "reminder title (required)")
	desc := fs.String("desc", "", "reminder description")
	due := fs.String("due", "", "due date, RFC3339 or YYYY-MM-DD (required)")
	notifyAt := fs.String("notify-at", "", "notification time, RFC3339 or YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		return fmt.Errorf("--title is required")
	}
	dueTime, err := parseUserTime(*due)
	if err != nil {
		return fmt.Errorf("--due: %w", err)
	}

	a, err := newApp(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	r := &model.Reminder{
		ID:          model.SentinelID,
		Title:       *title,
		Description: *desc,
		Date:        dueTime,
	}
	if *notifyAt != "" {
		nt, err := parseUserTime(*notifyAt)
		if err != nil {
			return fmt.Errorf("--notify-at: %w", err)
		}
		r.Notify = true
		r.NotifyDate = &nt
	}
	r.Touch(time.Now())

	if err := a.store.Insert(ctx, r); err != nil {
		return fmt.Errorf("storing reminder: %w", err)
	}
	fmt.Printf("added %q (local id %d)\n", r.Title, r.LocalID)

	syncBestEffort(ctx, a)
	return nil
}

// --- list --------------------------------------------------------------------

func runList(args []string) error {
	cfgPath, verbose, _, err := commonFlags("list", args)
	if err != nil {
		return err
	}

	a, err := newApp(cfgPath, verbose)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reminders, err := a.store.Active(ctx)
	if err != nil {
		return fmt.Errorf("reading replica: %w", err)
	}
	if len(reminders) == 0 {
		fmt.Println("no reminders")
		return nil
	}

	for _, r := range reminders {
		state := "synced"
		if !r.Synced {
			state = "pending"
		}
		fmt.Printf("%4d  %-30s  due %s  [%s]\n",
			r.LocalID, r.Title, r.Date.Local().Format("2006-01-02 15:04"), state)
		if r.Description != "" {
			fmt.Printf("      %s\n", r.Description)
		}
	}
	return nil
}

// --- remove ------------------------------------------------------------------

func runRemove(args []string) error {
	cfgPath, verbose, rest, err := commonFlags("remove", args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: remindsync remove <id>")
	}
	localID, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", rest[0])
	}

	a, err := newApp(cfgPath, verbose)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	r, err := a.store.GetByLocalID(ctx, localID)
	if err != nil {
		return fmt.Errorf("reading replica: %w", err)
	}
	if r == nil {
		return fmt.Errorf("no reminder with id %d — run 'remindsync list'", localID)
	}

	if err := a.store.MarkDeleted(ctx, localID, time.Now()); err != nil {
		return fmt.Errorf("tombstoning reminder: %w", err)
	}
	fmt.Printf("removed %q\n", r.Title)

	syncBestEffort(ctx, a)
	return nil
}

// --- status ------------------------------------------------------------------

func runStatus() error {
	cfgPath, _ := config.DefaultPath()

	fmt.Println("RemindSync Status")
	fmt.Println("─────────────────")

	cfg, loadErr := config.Load(cfgPath)
	if loadErr != nil {
		if os.IsNotExist(errors.Unwrap(loadErr)) {
			fmt.Printf("  Config:   not found (%s)\n", cfgPath)
		} else {
			fmt.Printf("  Config:   %s (invalid: %v)\n", cfgPath, loadErr)
		}
		return nil
	}
	fmt.Printf("  Config:   %s ✓\n", cfgPath)
	fmt.Printf("  Server:   %s\n", cfg.ServerURL)
	fmt.Printf("  Poll:     %s\n", cfg.PollInterval)
	fmt.Printf("  Data dir: %s\n", cfg.DataDir)

	dbPath := filepath.Join(cfg.DataDir, "reminders.db")
	info, err := os.Stat(dbPath)
	if err != nil {
		fmt.Println("  Replica:  not found")
		return nil
	}
	fmt.Printf("  Replica:  %s (%s)\n", dbPath, humanSize(info.Size()))

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Printf("  Replica:  cannot open: %v\n", err)
		return nil
	}
	defer st.Close()

	ctx := context.Background()
	if active, err := st.Active(ctx); err == nil {
		pending := 0
		for _, r := range active {
			if !r.Synced {
				pending++
			}
		}
		fmt.Printf("  Records:  %d active, %d pending push\n", len(active), pending)
	}
	if tombs, err := st.DeletedUnsynced(ctx); err == nil && len(tombs) > 0 {
		fmt.Printf("  Pending:  %d deletion(s) awaiting sync\n", len(tombs))
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

// syncBestEffort runs one pass after a local mutation. Failure is fine; the
// mutation is already durable and the next daemon pass will push it.
func syncBestEffort(ctx context.Context, a *app) {
	res := a.engine.Sync(ctx)
	if !res.Success {
		fmt.Printf("not synced yet (%s); will retry on next sync pass\n", res.Message)
		return
	}
	fmt.Println(res.Message)
}

// parseUserTime accepts RFC3339 or a bare date.
func parseUserTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q (want RFC3339 or YYYY-MM-DD)", s)
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

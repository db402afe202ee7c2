// Command repro records browser sessions and serves them over HTTP and MCP.
//
// Usage:
//
//	repro -config repro.yaml                  # run the daemon
//	repro inspect session.repro               # list the events of a file
//	repro seek -t 1500 session.repro          # print the page HTML at 1.5s
//	repro report -t 1500 session.repro        # print a Markdown bug report
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/repro/api"
	"github.com/hazyhaar/repro/capture"
	"github.com/hazyhaar/repro/config"
	"github.com/hazyhaar/repro/event"
	"github.com/hazyhaar/repro/playback"
	"github.com/hazyhaar/repro/recorder"
	"github.com/hazyhaar/repro/recording"
	"github.com/hazyhaar/repro/recstore"
	"github.com/hazyhaar/repro/report"
	"github.com/hazyhaar/repro/vdom"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "inspect", "seek", "report":
			if err := offline(os.Args[1], os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "repro %s: %v\n", os.Args[1], err)
				os.Exit(1)
			}
			return
		}
	}

	configPath := flag.String("config", "", "path to repro.yaml (defaults apply when empty)")
	logLevel := flag.String("log-level", "", "log level override: debug, info, warn, error")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "repro: config: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("repro: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	store, err := recstore.Open(cfg.Store.Path,
		recstore.WithBusyTimeout(cfg.Store.BusyTimeout),
		recstore.WithLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	agent, err := capture.New(capture.Config{
		Browser:          cfg.Browser.Mode,
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		DebounceWindow:   cfg.Debounce.Window,
		DebounceMax:      cfg.Debounce.MaxBuffer,
		UserAgent:        cfg.Browser.UserAgent,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	defer agent.Close()

	mcpPath := ""
	if cfg.MCP.Enabled {
		mcpPath = cfg.MCP.Path
	}
	srv := api.New(api.Config{
		Store:   store,
		Reports: reportBuilder(cfg, logger),
		Sources: agent,
		Recorder: recorder.Options{
			MaxBytes:         cfg.Recorder.MaxBytes,
			SnapshotInterval: cfg.Recorder.SnapshotInterval,
			TailBuffer:       cfg.Recorder.TailBuffer,
			Logger:           logger,
		},
		PersistEvicted: cfg.Recorder.PersistEvicted,
		MCPPath:        mcpPath,
		Logger:         logger,
	})

	for _, p := range cfg.Pages {
		sess, err := srv.StartSession(ctx, p.URL, p.Acquire)
		if err != nil {
			logger.Error("repro: start page", "url", p.URL, "error", err)
			continue
		}
		logger.Info("repro: recording page", "url", p.URL, "session", sess.ID)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("repro: listening", "addr", cfg.Listen, "mcp", mcpPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	logger.Info("repro: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("repro: http shutdown", "error", err)
	}
	return srv.Close(shutdownCtx)
}

func reportBuilder(cfg *config.Config, logger *slog.Logger) *report.Builder {
	return report.New(
		report.WithConsoleLimit(cfg.Report.ConsoleLimit),
		report.WithMinLevel(event.ParseConsoleLevel(cfg.Report.MinLevel)),
		report.WithLogger(logger),
	)
}

// offline runs a subcommand against a .repro file.
func offline(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	at := fs.Int("t", -1, "offset in milliseconds (default: end of recording)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: repro %s [-t ms] <file.repro>", cmd)
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	rec, err := recording.Decode(f)
	if err != nil {
		return err
	}

	offset := rec.Duration()
	if *at >= 0 {
		offset = min(uint32(*at), offset)
	}

	switch cmd {
	case "inspect":
		return inspect(rec)
	case "seek":
		eng, err := playback.FromRecording(rec)
		if err != nil {
			return err
		}
		if err := eng.SeekToTime(offset); err != nil {
			return err
		}
		tree := eng.Tree()
		if tree == nil {
			return errors.New("no document at this offset")
		}
		return vdom.Render(os.Stdout, *tree)
	default:
		rep, err := report.New().FromRecording(rec, offset)
		if err != nil {
			return err
		}
		_, err = rep.WriteTo(os.Stdout)
		return err
	}
}

func inspect(rec *recording.Recording) error {
	fmt.Printf("recording %s (codec v%d): %d events over %dms\n", rec.ID(), rec.CodecVersion(), rec.Len(), rec.Duration())
	for i, e := range rec.Events().All() {
		fmt.Printf("%6d %8dms  %s\n", i, e.Time, e.Type())
	}
	return rec.Events().Err()
}

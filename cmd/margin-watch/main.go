// Command margin-watch annotates files as they change on disk and writes
// the annotations to the log. Any editor that saves to disk can be the
// host.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/billie-coop/margin/internal/config"
	"github.com/billie-coop/margin/internal/engine"
	"github.com/billie-coop/margin/internal/events"
	"github.com/billie-coop/margin/internal/llm"
	"github.com/billie-coop/margin/internal/source"
)

var (
	projectPath string
	metricsAddr string
	jsonLogs    bool
	debugFlag   bool
	patchStdin  bool
)

var rootCmd = &cobra.Command{
	Use:   "margin-watch FILE...",
	Short: "Annotate files whenever they are saved",
	Long: `margin-watch attaches every FILE to the annotation engine and watches it
on disk. Each save is diffed against the previous contents; after the
debounce window the changed lines are sent to the configured model and the
resulting annotations are logged.

With --patches, unified diffs read from stdin are applied to the watched
files and written back to disk, as if an editor had saved them.

Examples:
  margin-watch notes.md
  margin-watch --metrics-addr :9464 chapter1.md chapter2.md
  git diff | margin-watch --patches notes.md`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&projectPath, "project", "p", ".",
		"project directory holding .margin/config.yaml")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address")
	rootCmd.Flags().BoolVar(&jsonLogs, "json", false, "log as JSON")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "debug logging")
	rootCmd.Flags().BoolVar(&patchStdin, "patches", false,
		"apply unified diffs from stdin to the watched files")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	mgr := config.NewManager(projectPath)
	if err := mgr.Load(); err != nil {
		return err
	}
	cfg := mgr.Get()
	if debugFlag {
		cfg.Debug = true
	}
	logger := newLogger(cfg.Debug)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := source.DefaultFileOptions()
	opts.Logger = logger
	files, err := source.NewFile(&opts)
	if err != nil {
		return err
	}

	transport, err := llm.NewTransport(cfg, logger)
	if err != nil {
		return err
	}

	checkCtx, cancelCheck := context.WithTimeout(ctx, 5*time.Second)
	if err := llm.CheckHealth(checkCtx, transport); err != nil {
		logger.Warn("model server not reachable, requests will fail until it is", "endpoint", cfg.Endpoint, "error", err)
	}
	cancelCheck()

	broker := events.NewBroker()
	defer broker.Clear()

	eng := engine.New(cfg, files, transport,
		engine.WithSink(engine.LogSink{Logger: logger}),
		engine.WithBroker(broker),
		engine.WithLogger(logger),
	)
	defer func() {
		_ = eng.Close()
		st := eng.QueueStatus()
		logger.Info("engine stopped", "avg_latency", st.AvgTime, "error_rate", st.ErrorRate)
	}()
	if eng.Dormant() {
		return eng.DormantReason()
	}

	for _, path := range args {
		docID, err := files.Open(path)
		if err != nil {
			return err
		}
		if err := eng.Attach(docID); err != nil {
			return err
		}
	}

	if patchStdin {
		// stdin cannot be interrupted, so this stays outside the group.
		go applyPatchStream(files, os.Stdin, ".", logger)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return files.Run(gCtx)
	})

	g.Go(func() error {
		logEvents(gCtx, broker, logger)
		return nil
	})

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("watching", "files", len(args), "provider", cfg.Provider, "debounce", cfg.Debounce())
	return g.Wait()
}

// applyPatchStream applies the unified diffs read from r until it ends or a
// patch fails.
func applyPatchStream(files *source.File, r io.Reader, dir string, logger *slog.Logger) {
	n, err := files.ApplyPatches(r, dir)
	if err != nil {
		logger.Warn("failed to apply patch", "patched", n, "error", err)
		return
	}
	logger.Info("patches applied", "files", n)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// logEvents writes engine lifecycle events until ctx ends.
func logEvents(ctx context.Context, broker *events.Broker, logger *slog.Logger) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			logEvent(logger, ev)
		}
	}
}

func logEvent(logger *slog.Logger, ev events.Event) {
	switch p := ev.Payload.(type) {
	case events.Notice:
		level := slog.LevelInfo
		switch p.Level {
		case events.NoticeWarn:
			level = slog.LevelWarn
		case events.NoticeError:
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, p.Message, "doc", ev.DocID)
	case events.RequestPayload:
		logger.Debug(string(ev.Type), "doc", ev.DocID, "request", p.RequestID, "changed", p.ChangedLines, "reason", p.Reason)
	case events.StatePayload:
		logger.Debug(string(ev.Type), "doc", ev.DocID, "from", p.From, "to", p.To)
	default:
		logger.Debug(string(ev.Type), "doc", ev.DocID)
	}
}

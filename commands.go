package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/billie-coop/margin/internal/config"
	"github.com/billie-coop/margin/internal/engine"
	"github.com/billie-coop/margin/internal/events"
	"github.com/billie-coop/margin/internal/llm"
	"github.com/billie-coop/margin/internal/source"
	"github.com/billie-coop/margin/internal/tui"
	"github.com/billie-coop/margin/internal/tui/styles"
)

var (
	projectPath string
	logFile     string
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "margin [FILE]",
	Short: "Edit a text file with a language model annotating it as you type",
	Long: `margin opens FILE in a terminal editor. A short while after you stop
typing, the changed lines are sent to the configured language model and its
comments appear beside the text. Editing a line drops the comments on it.

Configuration lives in <project>/.margin/config.yaml and is created with
defaults on first run.

Keys:
  ctrl+f  annotate now
  ctrl+r  reset annotations
  ctrl+s  save
  ctrl+c  quit`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runEditor,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the project configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		mgr := config.NewManager(projectPath)
		if err := mgr.Load(); err != nil {
			return err
		}
		data, err := os.ReadFile(mgr.Path())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", mgr.Path(), data)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := config.NewManager(projectPath)
		if err := mgr.Load(); err != nil {
			return err
		}
		if err := mgr.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := mgr.Get().Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".",
		"project directory holding .margin/config.yaml")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"write logs to this file (default <project>/.margin/margin.log)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"verbose logging and request details in the status bar")

	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runEditor(_ *cobra.Command, args []string) error {
	mgr := config.NewManager(projectPath)
	if err := mgr.Load(); err != nil {
		return err
	}
	cfg := mgr.Get()
	if debugFlag {
		cfg.Debug = true
	}

	themes := styles.NewManager(cfg.Theme)
	if themes.Current().Name != cfg.Theme {
		fmt.Fprintf(os.Stderr, "unknown theme %q, using %s (available: %v)\n", cfg.Theme, themes.Current().Name, themes.List())
	}
	styles.SetDefaultManager(themes)

	logger, closeLog, err := openLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	docID, path, text, err := openDocument(args)
	if err != nil {
		return err
	}

	buf := source.NewBuffer(source.WithBufferLogger(logger))
	buf.Open(docID, text)
	defer buf.Close(docID)

	transport, err := llm.NewTransport(cfg, logger)
	if err != nil {
		logger.Warn("no transport", "error", err)
	}

	broker := events.NewBroker()
	defer broker.Clear()
	sink := tui.NewSink()

	eng := engine.New(cfg, buf, transport,
		engine.WithSink(annotationSink(sink, logger, cfg.Debug)),
		engine.WithBroker(broker),
		engine.WithLogger(logger),
	)

	var ctrl tui.Controller
	if err := eng.Attach(docID); err != nil {
		logger.Warn("annotations disabled", "doc", docID, "error", err)
	} else {
		ctrl = eng
	}

	model := tui.New(tui.Options{
		DocID:    docID,
		Path:     path,
		Document: buf,
		Engine:   ctrl,
		Sink:     sink,
		Broker:   broker,
		Debug:    cfg.Debug,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := p.Run()

	sink.Close()
	if err := eng.Close(); err != nil {
		logger.Warn("engine close", "error", err)
	}
	return runErr
}

// annotationSink renders into the TUI, and into the log as well when
// debugging.
func annotationSink(ui engine.Sink, logger *slog.Logger, debug bool) engine.Sink {
	if !debug {
		return ui
	}
	return engine.MultiSink{ui, engine.LogSink{Logger: logger}}
}

// openDocument resolves the file argument. A missing file opens empty and
// is created on first save; no argument gives an unsaved scratch buffer.
func openDocument(args []string) (docID, path, text string, err error) {
	if len(args) == 0 {
		return "scratch", "", "", nil
	}

	path, err = filepath.Abs(args[0])
	if err != nil {
		return "", "", "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return path, path, "", nil
	case err != nil:
		return "", "", "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return path, path, string(data), nil
}

// openLogger writes text logs to a file; the terminal belongs to the TUI.
func openLogger(debug bool) (*slog.Logger, func(), error) {
	path := logFile
	if path == "" {
		path = filepath.Join(projectPath, ".margin", "margin.log")
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, func() { _ = f.Close() }, nil
}

// Package main provides the CLI entrypoint for mtpe.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/mtpe/internal/config"
	"github.com/verte-zerg/mtpe/internal/editdist"
	"github.com/verte-zerg/mtpe/internal/export"
	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/quality"
	"github.com/verte-zerg/mtpe/internal/reviewui"
	"github.com/verte-zerg/mtpe/internal/segments"
	"github.com/verte-zerg/mtpe/internal/session"
	"github.com/verte-zerg/mtpe/internal/stats"
	"github.com/verte-zerg/mtpe/internal/store"
	"github.com/verte-zerg/mtpe/internal/tui"
)

const (
	defaultCurveWindow = 5
	defaultTop         = 5
)

var (
	dbPath     string
	configPath string
	debugLog   bool

	sessionMode          string
	sessionOperator      string
	sessionIdleThreshold time.Duration
	sessionMinDwell      time.Duration
	sessionTick          time.Duration
	sessionIdleDetection bool
	sessionContext       int

	sourcePath string
	mtPath     string
	sessionID  string

	reportCurveWindow int
	reportTop         int

	exportFormat string
	exportOut    string

	scoreMT     string
	scoreEdited string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mtpe",
		Short:         "Time and measure machine translation post-editing",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "path to the session database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to the TOML config")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "write debug records to the log file")

	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newReviewCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addSessionFlags(cmd *cobra.Command) {
	defaults := config.Defaults()
	cmd.Flags().StringVar(&sessionMode, "mode", string(defaults.Mode), "timing mode: current or pet")
	cmd.Flags().StringVar(&sessionOperator, "operator", defaults.Operator, "operator name recorded with the session")
	cmd.Flags().DurationVar(&sessionIdleThreshold, "idle-threshold", defaults.IdleThreshold, "gaps at or above this count as idle (current mode)")
	cmd.Flags().DurationVar(&sessionMinDwell, "min-dwell", defaults.MinDwell, "minimum time a segment is shown before a pet timer may start")
	cmd.Flags().DurationVar(&sessionTick, "tick", defaults.TickInterval, "checkpoint interval")
	cmd.Flags().BoolVar(&sessionIdleDetection, "idle-detection", defaults.IdleDetection, "split idle gaps from active time (current mode)")
	cmd.Flags().IntVar(&sessionContext, "context", defaults.ContextLines, "neighbouring segments shown above and below")
}

// loadSettings layers defaults, the config file and explicitly set flags.
func loadSettings(cmd *cobra.Command) (model.Config, error) {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return model.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Defaults()
	if err := fileCfg.Apply(&cfg); err != nil {
		return model.Config{}, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if cmd.Flags().Changed("mode") {
		mode, err := model.ParseMode(sessionMode)
		if err != nil {
			return model.Config{}, err
		}
		cfg.Mode = mode
	}
	applyFlag(cmd, "operator", &cfg.Operator, sessionOperator)
	applyFlag(cmd, "idle-threshold", &cfg.IdleThreshold, sessionIdleThreshold)
	applyFlag(cmd, "min-dwell", &cfg.MinDwell, sessionMinDwell)
	applyFlag(cmd, "tick", &cfg.TickInterval, sessionTick)
	applyFlag(cmd, "idle-detection", &cfg.IdleDetection, sessionIdleDetection)
	applyFlag(cmd, "context", &cfg.ContextLines, sessionContext)
	if cfg.ContextLines < 0 {
		return model.Config{}, fmt.Errorf("--context must be >= 0")
	}
	if cfg.MinDwell < 0 {
		return model.Config{}, fmt.Errorf("--min-dwell must not be negative")
	}
	if err := config.Validate(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// applyFlag overrides target only when the flag was given on the command line.
func applyFlag[T any](cmd *cobra.Command, name string, target *T, value T) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Start a post-editing session",
		Args:  cobra.NoArgs,
		RunE:  runEditCmd,
	}
	addSessionFlags(cmd)
	cmd.Flags().StringVar(&sourcePath, "source", "", "source text, one segment per line")
	cmd.Flags().StringVar(&mtPath, "mt", "", "machine translation, one segment per line")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("mt")
	return cmd
}

func runEditCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	segs, err := segments.Load(sourcePath, mtPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := openLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := context.Background()
	ctrl, err := session.New(segs, cfg.Mode,
		session.WithLogger(logger),
		session.WithPersister(st),
		session.WithTrackerOptions(config.TrackerOptions(cfg)),
		session.WithOperator(cfg.Operator),
	)
	if err != nil {
		return err
	}
	if err := st.CreateSession(ctx, ctrl.State()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return runEditor(ctx, cmd.OutOrStdout(), ctrl, cfg, logger)
}

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an unfinished session",
		Args:  cobra.NoArgs,
		RunE:  runResumeCmd,
	}
	addSessionFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: latest unfinished)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "source file to check against the stored session")
	cmd.Flags().StringVar(&mtPath, "mt", "", "MT file to check against the stored session")
	cmd.MarkFlagsRequiredTogether("source", "mt")
	return cmd
}

func runResumeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := openLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := context.Background()
	var state model.SessionState
	if sessionID != "" {
		state, err = st.LoadSession(ctx, sessionID)
	} else {
		state, err = st.LatestSession(ctx, cfg.Operator)
	}
	if errors.Is(err, store.ErrNotFound) {
		logErrln("No unfinished session found. Start one with: mtpe edit --source <file> --mt <file>")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithPersister(st),
		session.WithTrackerOptions(config.TrackerOptions(cfg)),
	}
	if sourcePath != "" {
		segs, err := segments.Load(sourcePath, mtPath)
		if err != nil {
			return err
		}
		opts = append(opts, session.WithDocument(segs))
	}
	ctrl, err := session.Resume(state, cfg.Mode, opts...)
	var mismatch *session.ModeMismatchError
	if errors.As(err, &mismatch) {
		logErrf("Session %s was recorded in %s mode; resume it with --mode %s\n", state.ID, mismatch.Persisted, mismatch.Persisted)
		return err
	}
	if err != nil {
		return err
	}
	if ctrl.Active() < 0 {
		// Every segment already has a metric; reopen the last one for review.
		if err := ctrl.Navigate(ctx, 0); err != nil {
			return err
		}
	}
	return runEditor(ctx, cmd.OutOrStdout(), ctrl, cfg, logger)
}

func runEditor(ctx context.Context, out io.Writer, ctrl *session.Controller, cfg model.Config, logger *slog.Logger) error {
	editor := tui.NewModel(ctx, ctrl, cfg, logger)
	program := tea.NewProgram(editor, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	if !editor.Finished() {
		_, err := fmt.Fprintf(out, "Session %s saved. Continue with: mtpe resume --session %s --mode %s\n", ctrl.ID(), ctrl.ID(), ctrl.Mode())
		return err
	}
	if _, err := fmt.Fprintf(out, "Session %s finished.\n", ctrl.ID()); err != nil {
		return err
	}
	return stats.RenderSummary(out, stats.Summarize(ctrl.Metrics()))
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	cmd.Flags().StringVar(&sessionOperator, "operator", "", "operator filter")
	return cmd
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	list, err := st.ListSessions(context.Background(), model.ReportConfig{Operator: sessionOperator})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	return stats.RenderSessionList(cmd.OutOrStdout(), list, time.Now())
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: most recent)")
	cmd.Flags().StringVar(&sessionOperator, "operator", "", "operator filter")
	cmd.Flags().IntVar(&reportCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().IntVar(&reportTop, "top", defaultTop, "number of segments to highlight")
}

func reportConfig() (model.ReportConfig, error) {
	if reportCurveWindow < 1 {
		return model.ReportConfig{}, fmt.Errorf("--curve-window must be >= 1")
	}
	if reportTop < 0 {
		return model.ReportConfig{}, fmt.Errorf("--top must be >= 0")
	}
	return model.ReportConfig{
		SessionID:   sessionID,
		Operator:    sessionOperator,
		CurveWindow: reportCurveWindow,
		Top:         reportTop,
	}, nil
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Browse a session's metrics",
		Args:  cobra.NoArgs,
		RunE:  runReviewCmd,
	}
	addReportFlags(cmd)
	return cmd
}

func runReviewCmd(_ *cobra.Command, _ []string) error {
	cfg, err := reportConfig()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	program := tea.NewProgram(reviewui.NewModel(st, cfg), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run review TUI: %w", err)
	}
	return nil
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a session report",
		Args:  cobra.NoArgs,
		RunE:  runReportCmd,
	}
	addReportFlags(cmd)
	return cmd
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := reportConfig()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	report, err := stats.BuildReport(context.Background(), st, cfg)
	if errors.Is(err, store.ErrNotFound) {
		logErrln("No sessions found.")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	return stats.RenderReport(cmd.OutOrStdout(), report, cfg.CurveWindow, stats.TerminalWidth(), false)
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export finalized segment metrics",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: most recent)")
	cmd.Flags().StringVar(&exportFormat, "format", string(export.CSV), "csv, json or yaml")
	cmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := context.Background()
	id := sessionID
	if id == "" {
		list, err := st.ListSessions(ctx, model.ReportConfig{})
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(list) == 0 {
			return store.ErrNotFound
		}
		id = list[0].ID
	}
	state, err := st.LoadSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if exportOut == "" {
		return export.Write(cmd.OutOrStdout(), format, state)
	}
	if err := writeFileAtomic(exportOut, func(w io.Writer) error {
		return export.Write(w, format, state)
	}); err != nil {
		return err
	}
	logErrf("Wrote %s\n", exportOut)
	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "mtpe-export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	if err := write(writer); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute edit counts and quality scores for one pair of strings",
		Args:  cobra.NoArgs,
		RunE:  runScoreCmd,
	}
	cmd.Flags().StringVar(&scoreMT, "mt", "", "machine translation")
	cmd.Flags().StringVar(&scoreEdited, "edited", "", "post-edited text")
	return cmd
}

func runScoreCmd(cmd *cobra.Command, _ []string) error {
	return writeScore(cmd.OutOrStdout(), scoreMT, scoreEdited)
}

func writeScore(w io.Writer, mt, edited string) error {
	scores, err := quality.Score(edited, mt)
	if err != nil {
		return err
	}
	words := editdist.Compute(mt, edited, editdist.Words)
	chars := editdist.Compute(mt, edited, editdist.Chars)
	_, err = fmt.Fprintf(w,
		"Words: +%d -%d\nChars: +%d -%d\nBLEU: %.2f\nchrF: %.2f\nTER: %.2f\n",
		words.Insertions, words.Deletions,
		chars.Insertions, chars.Deletions,
		scores.BLEU, scores.CHRF, scores.TER,
	)
	return err
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// ensureConfigFile writes the commented default config if none exists.
func ensureConfigFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.DefaultFile), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	return nil
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

// openLogger opens the diagnostic log file. The terminal belongs to the TUI,
// so records never go to stderr.
func openLogger() (*slog.Logger, func(), error) {
	path := config.DefaultLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log: %w", err)
	}
	level := slog.LevelInfo
	if debugLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close of the log file.
			_ = cerr
		}
	}, nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/mtpe/internal/model"
	"github.com/verte-zerg/mtpe/internal/segments"
	"github.com/verte-zerg/mtpe/internal/session"
	"github.com/verte-zerg/mtpe/internal/store"
)

func seedSession(t *testing.T, db string) string {
	t.Helper()
	st, err := store.Open(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() {
		_ = st.Close()
	}()
	segs, err := segments.Pair([]string{"Die Katze", "Der Hund"}, []string{"the cat", "the dog"})
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	ctx := context.Background()
	ctrl, err := session.New(segs, model.ModeCurrent, session.WithPersister(st), session.WithOperator("ana"))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if err := st.CreateSession(ctx, ctrl.State()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := ctrl.Edit("the black cat"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := ctrl.Navigate(ctx, 1); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := ctrl.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return ctrl.ID()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExportCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "mtpe.db")
	seedSession(t, db)
	out := filepath.Join(dir, "out", "metrics.csv")
	if _, err := execute(t, "--db", db, "--config", filepath.Join(dir, "none.toml"), "export", "--format", "csv", "--out", out); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "segment_id,") {
		t.Fatalf("unexpected export:\n%s", data)
	}
	if !strings.Contains(lines[1], "the black cat") {
		t.Fatalf("edited text missing from export: %s", lines[1])
	}
}

func TestSessionsCommandListsSession(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "mtpe.db")
	id := seedSession(t, db)
	out, err := execute(t, "--db", db, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "2/2") {
		t.Fatalf("sessions output missing session:\n%s", out)
	}
}

func TestReportCommandNoSessions(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--db", filepath.Join(dir, "mtpe.db"), "report", "--session", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteScore(t *testing.T) {
	var buf bytes.Buffer
	if err := writeScore(&buf, "the cat sat", "the dog sat"); err != nil {
		t.Fatalf("writeScore: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Words: +1 -1") || !strings.Contains(out, "Chars: +3 -3") {
		t.Fatalf("unexpected score output:\n%s", out)
	}
}

func TestLoadSettingsLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[session]\nmode = \"pet\"\n[editor]\ncontext = 4\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })

	cmd := &cobra.Command{}
	addSessionFlags(cmd)
	if err := cmd.Flags().Set("context", "1"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	cfg, err := loadSettings(cmd)
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if cfg.Mode != model.ModePET || cfg.ContextLines != 1 {
		t.Fatalf("unexpected settings %+v", cfg)
	}

	if err := cmd.Flags().Set("idle-threshold", "100ms"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if _, err := loadSettings(cmd); err == nil {
		t.Fatalf("expected validation error for threshold below tick")
	}
}

func TestEnsureConfigFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := ensureConfigFile(path); err != nil {
		t.Fatalf("ensureConfigFile: %v", err)
	}
	if err := os.WriteFile(path, []byte("# mine\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ensureConfigFile(path); err != nil {
		t.Fatalf("ensureConfigFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "# mine\n" {
		t.Fatalf("existing config was overwritten")
	}
}

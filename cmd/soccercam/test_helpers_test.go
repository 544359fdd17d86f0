package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mblakley/soccer-cam/internal/camera"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/daemon"
	"github.com/mblakley/soccer-cam/internal/ipc"
	"github.com/mblakley/soccer-cam/internal/journal"
	"github.com/mblakley/soccer-cam/internal/logging"
	"github.com/mblakley/soccer-cam/internal/media/ffmpeg"
	"github.com/mblakley/soccer-cam/internal/state"
	"github.com/mblakley/soccer-cam/internal/testsupport"
	"github.com/mblakley/soccer-cam/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *state.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

// setupCLITestEnv writes a config file and serves a daemon over IPC without
// starting its scheduling loop, so group state only changes through the CLI.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg, state.WithObserver(j.Observer(logger)))
	mgr := workflow.NewManager(cfg, workflow.Deps{
		Store:   store,
		Adapter: camera.NewDirectory(cfg.Camera.SourceDir),
		Tool:    ffmpeg.New("ffmpeg", logger),
	}, logger)
	d, err := daemon.New(daemon.Options{Config: cfg, Store: store, Journal: j, Workflow: mgr, Logger: logger})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger, nil)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}
}

// failedGroup stores a group that failed while combining.
func (e *cliTestEnv) failedGroup(t *testing.T) state.Group {
	t.Helper()
	start := time.Date(2026, 9, 12, 9, 0, 0, 0, time.Local)
	g := testsupport.NewGroup(t, e.store, start, 30*time.Minute, 2)
	g, err := e.store.Update(g.ID, func(next *state.Group) error {
		next.Stage = state.StageCombining
		next.CombineAttempts = 3
		next.Error = &state.ErrorInfo{
			Stage:   state.StageCombining,
			Reason:  state.ReasonToolFailure,
			Message: "ffmpeg exited 1",
			At:      start.Add(2 * time.Hour),
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fail group: %v", err)
	}
	return g
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

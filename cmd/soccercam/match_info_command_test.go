package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mblakley/soccer-cam/internal/matchinfo"
)

func TestMatchInfoSetAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	g := env.failedGroup(t)
	dir := filepath.Join(env.cfg.Paths.StorageDir, g.ID)

	out, _, err := runCLI(t, []string{"match-info", g.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("match-info: %v", err)
	}
	requireContains(t, out, "No match info yet")

	out, _, err = runCLI(t, []string{"match-info", g.ID, "--team", "FC United", "--opponent", "City Kickers", "--start", "5:00"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("match-info set: %v", err)
	}
	requireContains(t, out, "Still missing: "+matchinfo.KeyLocation)

	info, exists, err := matchinfo.Load(dir)
	if err != nil || !exists {
		t.Fatalf("load: exists=%v err=%v", exists, err)
	}
	if info.Team != "FC United" || info.Opponent != "City Kickers" || info.StartOffset != "05:00" {
		t.Fatalf("unexpected info %+v", info)
	}

	if _, _, err := runCLI(t, []string{"match-info", g.ID, "--location", "Home Field"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("match-info location: %v", err)
	}
	out, _, err = runCLI(t, []string{"match-info", g.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("match-info show: %v", err)
	}
	requireContains(t, out, "Home Field")
	requireContains(t, out, "FC United")
	if strings.Contains(out, "Missing:") {
		t.Fatalf("expected complete match info, got %q", out)
	}
}

func TestMatchInfoRejectsBadOffsets(t *testing.T) {
	env := setupCLITestEnv(t)
	g := env.failedGroup(t)

	if _, _, err := runCLI(t, []string{"match-info", g.ID, "--start", "ten"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected invalid offset error")
	}
	_, _, err := runCLI(t, []string{"match-info", g.ID, "--start", "40:00", "--end", "10:00"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "must be after") {
		t.Fatalf("expected ordering error, got %v", err)
	}
	if _, exists, _ := matchinfo.Load(filepath.Join(env.cfg.Paths.StorageDir, g.ID)); exists {
		t.Fatal("rejected edits must not write the file")
	}
}

func TestMatchInfoUnknownGroup(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"match-info", "2020-01-01_00-00-00", "--team", "x"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

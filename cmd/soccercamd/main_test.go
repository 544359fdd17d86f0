package main

import "testing"

func TestConfigPathFromEnvironment(t *testing.T) {
	t.Setenv(configFileEnv, "  /etc/soccer-cam/config.toml ")
	if got := configPath(); got != "/etc/soccer-cam/config.toml" {
		t.Fatalf("configPath() = %q", got)
	}
	t.Setenv(configFileEnv, "")
	if got := configPath(); got != "" {
		t.Fatalf("expected default search path, got %q", got)
	}
}

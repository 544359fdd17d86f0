package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Sections and keys are
// separated by a double underscore: SOCCERCAM_CAMERA__PASSWORD sets
// camera.password.
const EnvPrefix = "SOCCERCAM_"

// loadDotEnv reads .env files from the config directory and the working
// directory. Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{}
	if strings.TrimSpace(configDir) != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	if wd, err := os.Getwd(); err == nil {
		local := filepath.Join(wd, ".env")
		if len(candidates) == 0 || candidates[0] != local {
			candidates = append(candidates, local)
		}
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file: %w", err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, "__", ".")
}

// applyEnvOverrides layers SOCCERCAM_* variables over the decoded file.
func applyEnvOverrides(cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "toml"}); err != nil {
		return fmt.Errorf("apply env overrides: %w", err)
	}
	return nil
}

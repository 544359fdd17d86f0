// Command soccercamd runs the soccer-cam daemon in the foreground. It is the
// entry point for service managers; interactive use goes through
// `soccercam daemon` or `soccercam start`.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/daemonrun"
)

// configFileEnv names the config file when the service unit cannot pass
// flags. An empty value selects the default search path.
const configFileEnv = config.EnvPrefix + "CONFIG_FILE"

func main() {
	cfg, _, _, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("soccercamd: %v", err)
	}
}

func configPath() string {
	return strings.TrimSpace(os.Getenv(configFileEnv))
}

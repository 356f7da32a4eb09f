// Package config loads machinectl settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds machinectl settings.
type Config struct {
	LogLevel string `env:"MACHINECTL_LOG_LEVEL, default=info"`
	StateDir string `env:"MACHINECTL_STATE_DIR, default=.machinectl"`
	Format   string `env:"MACHINECTL_FORMAT, default=json"`
}

// Load reads the configuration from the process environment, falling back
// to values from envFiles (".env" when none are given). Missing files are
// ignored; process variables win over file values.
func Load(ctx context.Context, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	fileVars := make(map[string]string)
	for _, fn := range envFiles {
		vars, err := godotenv.Read(fn)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("read %s: %w", fn, err)
		}
		for k, v := range vars {
			if _, seen := fileVars[k]; !seen {
				fileVars[k] = v
			}
		}
	}
	return process(ctx, envconfig.MultiLookuper(envconfig.OsLookuper(), envconfig.MapLookuper(fileVars)))
}

func process(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &c, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the snapshot format.
func (c Config) Validate() error {
	switch c.Format {
	case "json", "yaml":
		return nil
	default:
		return fmt.Errorf("MACHINECTL_FORMAT: unsupported format %q (want json or yaml)", c.Format)
	}
}

package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// dotenvFiles are loaded, when present, before the environment is read.
// Variables already set in the process environment win over the files.
var dotenvFiles = []string{".env"}

// parseEnv overlays TRAVEL_* environment variables. Unset variables leave
// the field untouched.
func parseEnv(config *Config) error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return env.Parse(config)
}

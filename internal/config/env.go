package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds defaults taken from the environment. Command line flags override
// them.
type Env struct {
	Config        string `env:"ROUTEFWD_CONFIG"`
	Upstream      string `env:"ROUTEFWD_UPSTREAM"`
	AllProxy      string `env:"ALL_PROXY"`
	AllProxyLower string `env:"all_proxy"`
	LogLevel      string `env:"ROUTEFWD_LOG_LEVEL" envDefault:"info"`
}

// LoadEnv loads dotenv files, if present, into the process environment and
// parses Env from it. Missing dotenv files are not an error.
func LoadEnv(dotenv ...string) (Env, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, name := range dotenv {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", name, err)
		}
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// DefaultUpstream returns the upstream to use when none is given on the
// command line.
func (e Env) DefaultUpstream() string {
	if e.Upstream != "" {
		return e.Upstream
	}
	if e.AllProxy != "" {
		return e.AllProxy
	}
	if e.AllProxyLower != "" {
		return e.AllProxyLower
	}
	return "direct://"
}

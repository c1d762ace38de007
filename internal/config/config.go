// Package config loads the GuidedClever configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// DefaultFile is looked up in the working directory.
const DefaultFile = "guidedclever.cfg"

// Environment overrides
const (
	EnvEngine = "GUIDEDCLEVER_ENGINE"
	EnvLog    = "GUIDEDCLEVER_LOG"
)

// ErrNoEngine is returned when no engine executable is configured.
var ErrNoEngine = errors.New("config: EngineFile is not set")

// Option is an engine option to forward at startup.
type Option struct {
	Name  string
	Value string
}

// Config is the startup configuration.
type Config struct {
	EngineFile string
	Log        bool
	LogFile    string

	// K is the initial temperature, nil to keep the default.
	K *float64

	// Journal is the selection journal directory; "" disables it and
	// "default" selects the platform data directory.
	Journal string

	// Options are the remaining [engine] keys in file order.
	Options []Option
}

// Load reads path and applies environment overrides. A .env file in the
// working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	cfg := &Config{LogFile: "guidedclever.log"}

	eng := file.Section("engine")
	for _, key := range eng.Keys() {
		switch key.Name() {
		case "enginefile":
			cfg.EngineFile = key.String()
		case "log":
			cfg.Log = parseBool(key.String())
		default:
			cfg.Options = append(cfg.Options, Option{Name: key.Name(), Value: key.String()})
		}
	}

	own := file.Section("guidedclever")
	if key, err := own.GetKey("k"); err == nil {
		k, err := strconv.ParseFloat(strings.TrimSpace(key.String()), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: K: %w", path, err)
		}
		cfg.K = &k
	}
	if v := own.Key("logfile").String(); v != "" {
		cfg.LogFile = v
	}
	cfg.Journal = own.Key("journal").String()

	if v, ok := os.LookupEnv(EnvEngine); ok && v != "" {
		cfg.EngineFile = v
	}
	if v, ok := os.LookupEnv(EnvLog); ok {
		cfg.Log = parseBool(v)
	}

	if cfg.EngineFile == "" {
		return cfg, ErrNoEngine
	}
	return cfg, nil
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.EqualFold(s, "yes") || strings.EqualFold(s, "on")
}

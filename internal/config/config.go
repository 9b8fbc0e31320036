// Package config loads the daemon configuration from a YAML file through the
// kratos config file source and applies defaults and environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	_ "github.com/go-kratos/kratos/v2/encoding/yaml"
)

// Environment variables that override the file.
const (
	EnvHTTPAddr = "WHEEL_HTTP_ADDR"
	EnvDBPath   = "WHEEL_DB_PATH"
	EnvLogLevel = "WHEEL_LOG_LEVEL"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration accepts "800ms" style strings or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(val)
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("duration %q: %w", val, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("duration: unsupported value %v", v)
	}
	return nil
}

type Bootstrap struct {
	Server Server `json:"server"`
	Log    Log    `json:"log"`
	Wheel  Wheel  `json:"wheel"`
	Data   Data   `json:"data"`
	Scan   Scan   `json:"scan"`
}

type Server struct {
	HTTP HTTP `json:"http"`
}

type HTTP struct {
	Addr            string   `json:"addr"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout"`
	RequestTimeout  Duration `json:"request_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	CORSOrigins     []string `json:"cors_origins"`
}

type Log struct {
	Mode  string `json:"mode"`
	Level string `json:"level"`
	App   string `json:"app"`
	Dir   string `json:"dir"`
	File  bool   `json:"file"`
}

type Wheel struct {
	DefaultSegments int      `json:"default_segments"`
	DefaultTier     string   `json:"default_tier"`
	MaxSegments     int      `json:"max_segments"`
	Spinner         string   `json:"spinner"`
	SpinDuration    Duration `json:"spin_duration"`
	SessionTTL      Duration `json:"session_ttl"`
	MaxSessions     int      `json:"max_sessions"`
}

type Data struct {
	Database Database `json:"database"`
}

type Database struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

type Scan struct {
	Workers        int      `json:"workers"`
	MaxRange       uint64   `json:"max_range"`
	DefaultLimit   int      `json:"default_limit"`
	DefaultTimeout Duration `json:"default_timeout"`
	MaxTimeout     Duration `json:"max_timeout"`
}

// Spinner modes.
const (
	SpinnerTimer  = "timer"
	SpinnerManual = "manual"
)

// Default returns a configuration that runs without a config file.
func Default() *Bootstrap {
	return &Bootstrap{
		Server: Server{HTTP: HTTP{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			RequestTimeout:  Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		}},
		Log: Log{Mode: "dev", Level: "info", App: "wheeld", Dir: "logs"},
		Wheel: Wheel{
			DefaultSegments: 30,
			DefaultTier:     "medium",
			MaxSegments:     1000,
			Spinner:         SpinnerTimer,
			SpinDuration:    Duration{800 * time.Millisecond},
			SessionTTL:      Duration{30 * time.Minute},
			MaxSessions:     10000,
		},
		Data: Data{Database: Database{Driver: "sqlite", Path: "data/wheel.db"}},
		Scan: Scan{
			Workers:        0,
			MaxRange:       500_000,
			DefaultLimit:   1000,
			DefaultTimeout: Duration{30 * time.Second},
			MaxTimeout:     Duration{5 * time.Minute},
		},
	}
}

// Load reads path (a file or a directory of YAML files). An empty path yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Bootstrap, error) {
	bc := Default()
	if path != "" {
		c := config.New(config.WithSource(file.NewSource(path)))
		defer c.Close()

		if err := c.Load(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := c.Scan(bc); err != nil {
			return nil, fmt.Errorf("scan config %s: %w", path, err)
		}
	}
	bc.applyDefaults()
	bc.ApplyEnv()
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return bc, nil
}

// ApplyEnv overrides selected values from the environment.
func (b *Bootstrap) ApplyEnv() {
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		b.Server.HTTP.Addr = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		b.Data.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		b.Log.Level = v
	}
	if v := os.Getenv("WHEEL_SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			b.Scan.Workers = n
		}
	}
}

// applyDefaults fills zero values left by a partial file.
func (b *Bootstrap) applyDefaults() {
	d := Default()
	h := &b.Server.HTTP
	if h.Addr == "" {
		h.Addr = d.Server.HTTP.Addr
	}
	fillDuration(&h.ReadTimeout, d.Server.HTTP.ReadTimeout)
	fillDuration(&h.WriteTimeout, d.Server.HTTP.WriteTimeout)
	fillDuration(&h.IdleTimeout, d.Server.HTTP.IdleTimeout)
	fillDuration(&h.RequestTimeout, d.Server.HTTP.RequestTimeout)
	fillDuration(&h.ShutdownTimeout, d.Server.HTTP.ShutdownTimeout)

	if b.Log.App == "" {
		b.Log.App = d.Log.App
	}
	if b.Log.Level == "" {
		b.Log.Level = d.Log.Level
	}

	w := &b.Wheel
	if w.DefaultSegments == 0 {
		w.DefaultSegments = d.Wheel.DefaultSegments
	}
	if w.DefaultTier == "" {
		w.DefaultTier = d.Wheel.DefaultTier
	}
	if w.MaxSegments == 0 {
		w.MaxSegments = d.Wheel.MaxSegments
	}
	if w.Spinner == "" {
		w.Spinner = d.Wheel.Spinner
	}
	fillDuration(&w.SpinDuration, d.Wheel.SpinDuration)
	fillDuration(&w.SessionTTL, d.Wheel.SessionTTL)
	if w.MaxSessions == 0 {
		w.MaxSessions = d.Wheel.MaxSessions
	}

	if b.Data.Database.Driver == "" {
		b.Data.Database.Driver = d.Data.Database.Driver
	}
	if b.Data.Database.Path == "" {
		b.Data.Database.Path = d.Data.Database.Path
	}

	s := &b.Scan
	if s.MaxRange == 0 {
		s.MaxRange = d.Scan.MaxRange
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = d.Scan.DefaultLimit
	}
	fillDuration(&s.DefaultTimeout, d.Scan.DefaultTimeout)
	fillDuration(&s.MaxTimeout, d.Scan.MaxTimeout)
}

func fillDuration(d *Duration, def Duration) {
	if d.Duration <= 0 {
		*d = def
	}
}

// Validate reports the first inconsistent setting.
func (b *Bootstrap) Validate() error {
	switch {
	case b.Wheel.DefaultSegments <= 0:
		return fmt.Errorf("%w: wheel.default_segments must be positive", ErrInvalidConfig)
	case b.Wheel.DefaultSegments > b.Wheel.MaxSegments:
		return fmt.Errorf("%w: wheel.default_segments exceeds wheel.max_segments", ErrInvalidConfig)
	case b.Wheel.Spinner != SpinnerTimer && b.Wheel.Spinner != SpinnerManual:
		return fmt.Errorf("%w: wheel.spinner must be %q or %q", ErrInvalidConfig, SpinnerTimer, SpinnerManual)
	case strings.ToLower(b.Data.Database.Driver) != "sqlite":
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, b.Data.Database.Driver)
	case b.Scan.Workers < 0:
		return fmt.Errorf("%w: scan.workers must not be negative", ErrInvalidConfig)
	case b.Scan.DefaultTimeout.Duration > b.Scan.MaxTimeout.Duration:
		return fmt.Errorf("%w: scan.default_timeout exceeds scan.max_timeout", ErrInvalidConfig)
	}
	return nil
}

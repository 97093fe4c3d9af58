// Package config loads macroindex settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/phobologic/macroindex/internal/lang"
	"github.com/phobologic/macroindex/internal/preproc"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = ".macroindex.toml"

// Preprocessor configures include resolution and predefined macros.
type Preprocessor struct {
	IncludeDirs     []string          `toml:"include_dirs"`
	SystemDirs      []string          `toml:"system_dirs"`
	RecoveryDirs    []string          `toml:"recovery_dirs"`
	Defines         map[string]string `toml:"defines"`
	MaxIncludeDepth int               `toml:"max_include_depth"`
}

// Scan configures translation unit discovery.
type Scan struct {
	Languages   []string `toml:"languages"`
	MaxFileSize int64    `toml:"max_file_size"`
	Workers     int      `toml:"workers"`
}

// Store configures persistence.
type Store struct {
	Path        string `toml:"path"`
	Incremental bool   `toml:"incremental"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Report configures the printed report.
type Report struct {
	MaxHeaders  int    `toml:"max_headers"`
	Occurrences bool   `toml:"occurrences"`
	MetricsFile string `toml:"metrics_file"`
}

// Config is the complete configuration file.
type Config struct {
	Preprocessor Preprocessor `toml:"preprocessor"`
	Scan         Scan         `toml:"scan"`
	Store        Store        `toml:"store"`
	Log          Log          `toml:"log"`
	Report       Report       `toml:"report"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Preprocessor: Preprocessor{
			Defines:         map[string]string{},
			MaxIncludeDepth: preproc.DefaultMaxIncludeDepth,
		},
		Scan: Scan{
			Languages:   []string{"c", "cpp"},
			MaxFileSize: 1 << 20,
			Workers:     runtime.GOMAXPROCS(0),
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults. A missing DefaultPath is not an error;
// a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Preprocessor.Defines == nil {
		cfg.Preprocessor.Defines = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error
	for _, l := range c.Scan.Languages {
		if _, ok := lang.Languages[l]; !ok {
			errs = append(errs, fmt.Errorf("scan.languages: unknown language %q", l))
		}
	}
	if c.Scan.Workers < 1 {
		errs = append(errs, fmt.Errorf("scan.workers: must be at least 1, got %d", c.Scan.Workers))
	}
	if c.Scan.MaxFileSize < 0 {
		errs = append(errs, errors.New("scan.max_file_size: must not be negative"))
	}
	if c.Preprocessor.MaxIncludeDepth < 1 {
		errs = append(errs, errors.New("preprocessor.max_include_depth: must be at least 1"))
	}
	for name := range c.Preprocessor.Defines {
		if !validMacroName(name) {
			errs = append(errs, fmt.Errorf("preprocessor.defines: invalid macro name %q", name))
		}
	}
	if c.Report.MaxHeaders < 0 {
		errs = append(errs, errors.New("report.max_headers: must not be negative"))
	}
	if c.Store.Incremental && c.Store.Path == "" {
		errs = append(errs, errors.New("store.incremental: requires store.path"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// ParseDefine splits NAME[=VALUE]. A bare NAME gets the value "1".
func ParseDefine(s string) (name, value string, err error) {
	name, value, found := strings.Cut(s, "=")
	if !found {
		value = "1"
	}
	if !validMacroName(name) {
		return "", "", fmt.Errorf("invalid macro name %q", name)
	}
	return name, value, nil
}

func validMacroName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case '0' <= r && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// PreprocessorConfig converts the file settings for the front-end.
func (c *Config) PreprocessorConfig() preproc.Config {
	return preproc.Config{
		IncludeDirs:     c.Preprocessor.IncludeDirs,
		SystemDirs:      c.Preprocessor.SystemDirs,
		RecoveryDirs:    c.Preprocessor.RecoveryDirs,
		Defines:         c.Preprocessor.Defines,
		MaxIncludeDepth: c.Preprocessor.MaxIncludeDepth,
		MaxFileSize:     c.Scan.MaxFileSize,
	}
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(cfg)
}

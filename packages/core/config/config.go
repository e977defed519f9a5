package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/logging"
	"gopkg.in/yaml.v3"
)

// Config is the hitplan configuration. Booleans are pointers so that Merge
// can tell an explicit false from an unset value.
type Config struct {
	// Parallelism bounds how many plan files run at once.
	Parallelism int `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	// StartRate limits unit starts per second inside parallel groups.
	StartRate float64 `json:"startRate,omitempty" yaml:"startRate,omitempty"`
	Bail      *bool   `json:"bail,omitempty" yaml:"bail,omitempty"`
	Verbose   *bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor   *bool   `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	// Reporters lists output formats: console, json, junit, tap.
	Reporters []string `json:"reporters,omitempty" yaml:"reporters,omitempty"`
	OutputDir string   `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	// Database is the default DSN of sql steps and sql data sources.
	Database  string          `json:"database,omitempty" yaml:"database,omitempty"`
	EnvFile   string          `json:"envFile,omitempty" yaml:"envFile,omitempty"`
	Variables map[string]any  `json:"variables,omitempty" yaml:"variables,omitempty"`
	Log       *logging.Config `json:"log,omitempty" yaml:"log,omitempty"`
}

func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (c *Config) GetBail() bool    { return getBool(c.Bail, false) }
func (c *Config) GetVerbose() bool { return getBool(c.Verbose, false) }
func (c *Config) GetNoColor() bool { return getBool(c.NoColor, false) }

// ConfigFilenames are searched in order by FindAndLoadConfig.
var ConfigFilenames = []string{
	".hitplan.config.json",
	"hitplan.config.json",
	".hitplanrc",
	"hitplan.yaml",
	".hitplan.yaml",
}

// LoadConfig loads path, or searches the working directory when path is
// empty. Environment overrides are applied in both cases.
func LoadConfig(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = loadConfigFromFile(path)
	} else {
		cfg, err = FindAndLoadConfig(".")
	}
	if err != nil {
		return nil, err
	}
	return cfg.ApplyEnv(os.LookupEnv)
}

// FindAndLoadConfig loads the first config file present in dir. Without one
// it returns the defaults.
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, name := range ConfigFilenames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return loadConfigFromFile(p)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HITPLAN_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) (*Config, error) {
	out := *c
	if v, ok := lookup("HITPLAN_PARALLELISM"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HITPLAN_PARALLELISM: %w", err)
		}
		out.Parallelism = n
	}
	if v, ok := lookup("HITPLAN_START_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("HITPLAN_START_RATE: %w", err)
		}
		out.StartRate = f
	}
	for name, dst := range map[string]**bool{
		"HITPLAN_BAIL":     &out.Bail,
		"HITPLAN_VERBOSE":  &out.Verbose,
		"HITPLAN_NO_COLOR": &out.NoColor,
	} {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			*dst = BoolPtr(b)
		}
	}
	if v, ok := lookup("HITPLAN_OUTPUT_DIR"); ok {
		out.OutputDir = v
	}
	if v, ok := lookup("HITPLAN_DATABASE"); ok {
		out.Database = v
	}
	if v, ok := lookup("HITPLAN_LOG_LEVEL"); ok {
		l := *out.logConfig()
		l.Level = v
		out.Log = &l
	}
	return &out, nil
}

func (c *Config) logConfig() *logging.Config {
	if c.Log == nil {
		return logging.DefaultConfig()
	}
	return c.Log
}

// LogConfig returns the logging section with defaults filled in.
func (c *Config) LogConfig() *logging.Config {
	l := *c.logConfig()
	def := logging.DefaultConfig()
	if l.Level == "" {
		l.Level = def.Level
	}
	if l.Format == "" {
		l.Format = def.Format
	}
	if l.Output == "" {
		l.Output = def.Output
	}
	l.NoColor = c.GetNoColor()
	return &l
}

// Merge returns c overridden by the fields set in other.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}
	result := *c

	if other.Parallelism > 0 {
		result.Parallelism = other.Parallelism
	}
	if other.StartRate > 0 {
		result.StartRate = other.StartRate
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.Database != "" {
		result.Database = other.Database
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if len(other.Variables) > 0 {
		vars := make(map[string]any, len(result.Variables)+len(other.Variables))
		for k, v := range result.Variables {
			vars[k] = v
		}
		for k, v := range other.Variables {
			vars[k] = v
		}
		result.Variables = vars
	}
	if other.Log != nil {
		l := *result.logConfig()
		if other.Log.Level != "" {
			l.Level = other.Log.Level
		}
		if other.Log.Format != "" {
			l.Format = other.Log.Format
		}
		if other.Log.Output != "" {
			l.Output = other.Log.Output
		}
		if other.Log.FilePath != "" {
			l.FilePath = other.Log.FilePath
		}
		result.Log = &l
	}
	return &result
}

// SaveConfig writes c as indented JSON, or YAML for .yaml and .yml paths.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

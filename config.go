package sqlcycle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Phase names a section of a run
type Phase string

const (
	PhaseInit  Phase = "init"
	PhaseTest  Phase = "test"
	PhaseFinal Phase = "final"
)

// AllPhases lists phases in execution order
var AllPhases = []Phase{PhaseInit, PhaseTest, PhaseFinal}

// Config represents the sqlcycle suite configuration
type Config struct {
	Driver           string   `yaml:"driver" toml:"driver"`
	DSN              string   `yaml:"dsn" toml:"dsn"`
	Cycles           int      `yaml:"cycles" toml:"cycles"`
	Key              string   `yaml:"key" toml:"key"`
	SingleConnection *bool    `yaml:"single_connection" toml:"single_connection"` // nil means true
	Phases           []string `yaml:"phases" toml:"phases"`

	CaseFormat  string `yaml:"case_format" toml:"case_format"`
	CycleFormat string `yaml:"cycle_format" toml:"cycle_format"`
	RunFormat   string `yaml:"run_format" toml:"run_format"`

	GDBMacros   string `yaml:"gdb_macros" toml:"gdb_macros"`
	GDBBinary   string `yaml:"gdb_binary" toml:"gdb_binary"`
	RunGDBAfter []int  `yaml:"run_gdb_after" toml:"run_gdb_after"`
	ArtifactDir string `yaml:"artifact_dir" toml:"artifact_dir"`

	JUnitReport string `yaml:"junit_report" toml:"junit_report"`
	MetricsFile string `yaml:"metrics_file" toml:"metrics_file"`

	Init  []PhaseAction `yaml:"init" toml:"init"`
	Final []PhaseAction `yaml:"final" toml:"final"`
	Tests []TestCase    `yaml:"tests" toml:"tests"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-" toml:"-"`
}

// PhaseAction is one unit of DDL work for the init or final phase.
// Exactly one of SQL or Script is set.
type PhaseAction struct {
	SQL    string         `yaml:"sql" toml:"sql"`
	Script string         `yaml:"script" toml:"script"`
	DSN    string         `yaml:"dsn" toml:"dsn"`
	Driver string         `yaml:"driver" toml:"driver"`
	Params map[string]any `yaml:"params" toml:"params"`
}

// TestCase is the unit of testable behavior
type TestCase struct {
	Query        string           `yaml:"query" toml:"query"`
	Pre          string           `yaml:"pre" toml:"pre"`
	ExpectResult []map[string]any `yaml:"expect_result" toml:"expect_result"`
	ExpectError  string           `yaml:"expect_error" toml:"expect_error"`
	ExpectCheck  string           `yaml:"expect_check" toml:"expect_check"`

	// Key names used by the original python runner, folded into the fields above on load.
	Result  []map[string]any `yaml:"result" toml:"result"`
	PGError string           `yaml:"pgerror" toml:"pgerror"`
}

// HasExpectResult reports whether expect_result was declared, including an empty list.
func (tc *TestCase) HasExpectResult() bool {
	return tc.ExpectResult != nil
}

// HasExpectError reports whether expect_error was declared
func (tc *TestCase) HasExpectError() bool {
	return tc.ExpectError != ""
}

// IsSingleConnection returns true unless single_connection: false is set
func (c *Config) IsSingleConnection() bool {
	return c.SingleConnection == nil || *c.SingleConnection
}

// RunsPhase reports whether the phase is enabled
func (c *Config) RunsPhase(phase Phase) bool {
	for _, p := range c.Phases {
		if Phase(p) == phase {
			return true
		}
	}

	return false
}

// TestTarget resolves the target of the test phase
func (c *Config) TestTarget() (Target, error) {
	driver, err := NormalizeDriver(c.Driver)
	if err != nil {
		return Target{}, err
	}

	if c.DSN == "" {
		return Target{}, fmt.Errorf("%w: test phase", ErrMissingDSN)
	}

	return Target{Driver: driver, DSN: c.DSN}, nil
}

// ActionTarget resolves the target of a phase action.
// An action without a driver inherits the suite driver.
func (c *Config) ActionTarget(action PhaseAction) (Target, error) {
	name := action.Driver
	if name == "" {
		name = c.Driver
	}

	driver, err := NormalizeDriver(name)
	if err != nil {
		return Target{}, err
	}

	return Target{Driver: driver, DSN: action.DSN}, nil
}

// ResolvePath resolves a path relative to the directory of the config file
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Path == "" {
		return path
	}

	return filepath.Join(filepath.Dir(c.Path), path)
}

// ArtifactPath returns the debugger artifact path for a cycle:
// <artifact_dir>/<config base name>.<cycle>.gdb
func (c *Config) ArtifactPath(cycle int) string {
	base := "sqlcycle"
	if c.Path != "" {
		base = strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	}

	dir := c.ArtifactDir
	if dir == "" && c.Path != "" {
		dir = filepath.Dir(c.Path)
	} else {
		dir = c.ResolvePath(dir)
	}

	return filepath.Join(dir, base+"."+strconv.Itoa(cycle)+".gdb")
}

// LoadConfig loads configuration from the specified file
func LoadConfig(configPath string) (*Config, error) {
	// Load .env files first
	err := loadEnvFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := ParseConfig(data, filepath.Ext(configPath))
	if err != nil {
		return nil, err
	}

	config.Path = configPath

	return config, nil
}

// ParseConfig decodes, normalizes and validates configuration data.
// ext selects the format: ".toml" or ".yaml"/".yml" (also the default for "").
func ParseConfig(data []byte, ext string) (*Config, error) {
	var config Config

	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case "", ".yaml", ".yml":
		// Parse YAML with strict mode to detect unknown fields
		if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, ext)
	}

	foldLegacyKeys(&config)
	applyDefaults(&config)
	expandConfigEnvVars(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// foldLegacyKeys moves result/pgerror into expect_result/expect_error
func foldLegacyKeys(config *Config) {
	for i := range config.Tests {
		tc := &config.Tests[i]
		if tc.ExpectResult == nil && tc.Result != nil {
			tc.ExpectResult = tc.Result
			tc.Result = nil
		}

		if tc.ExpectError == "" && tc.PGError != "" {
			tc.ExpectError = tc.PGError
			tc.PGError = ""
		}
	}
}

// applyDefaults applies default values to missing configuration fields
func applyDefaults(config *Config) {
	if config.Cycles == 0 {
		config.Cycles = 1
	}

	if len(config.Phases) == 0 {
		for _, p := range AllPhases {
			config.Phases = append(config.Phases, string(p))
		}
	}

	if config.CycleFormat == "" {
		config.CycleFormat = `cycle {{printf "%2d" .cycle}}: {{.check_stat}}`
	}

	if config.GDBBinary == "" {
		config.GDBBinary = "gdb"
	}
}

// validateConfig validates the configuration for common errors and inconsistencies
func validateConfig(config *Config) error {
	if _, err := NormalizeDriver(config.Driver); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}

	if config.Cycles < 1 {
		return fmt.Errorf("%w: cycles must be >= 1, got %d", ErrConfigValidation, config.Cycles)
	}

	for _, p := range config.Phases {
		switch Phase(p) {
		case PhaseInit, PhaseTest, PhaseFinal:
		default:
			return fmt.Errorf("%w: %w '%s': must be one of init, test, final", ErrConfigValidation, ErrUnknownPhase, p)
		}
	}

	for name, actions := range map[string][]PhaseAction{"init": config.Init, "final": config.Final} {
		for i, action := range actions {
			if (action.SQL == "") == (action.Script == "") {
				return fmt.Errorf("%w: %s[%d]: %w", ErrConfigValidation, name, i, ErrActionKind)
			}

			if action.DSN == "" {
				return fmt.Errorf("%w: %s[%d]: %w", ErrConfigValidation, name, i, ErrMissingDSN)
			}

			if _, err := config.ActionTarget(action); err != nil {
				return fmt.Errorf("%w: %s[%d]: %w", ErrConfigValidation, name, i, err)
			}
		}
	}

	for i, tc := range config.Tests {
		if strings.TrimSpace(tc.Query) == "" {
			return fmt.Errorf("%w: tests[%d]: %w", ErrConfigValidation, i, ErrEmptyQuery)
		}

		if tc.HasExpectResult() && tc.HasExpectError() {
			return fmt.Errorf("%w: tests[%d]: %w", ErrConfigValidation, i, ErrConflictingExpectations)
		}
	}

	for name, format := range map[string]string{
		"case_format":  config.CaseFormat,
		"cycle_format": config.CycleFormat,
		"run_format":   config.RunFormat,
	} {
		if format == "" {
			continue
		}

		if _, err := template.New(name).Parse(format); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfigValidation, name, err)
		}
	}

	if len(config.RunGDBAfter) > 0 && config.GDBMacros == "" {
		return fmt.Errorf("%w: %w", ErrConfigValidation, ErrDebuggerNotConfigured)
	}

	for _, cycle := range config.RunGDBAfter {
		if cycle < 1 || cycle > config.Cycles {
			return fmt.Errorf("%w: run_gdb_after: %w: %d not in 1..%d", ErrConfigValidation, ErrCycleOutOfRange, cycle, config.Cycles)
		}
	}

	return nil
}

// loadEnvFiles loads .env files if they exist
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	return nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([^}]+)\}`)
	plainEnvVar  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string) string {
	s = bracedEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})

	return plainEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[1:])
	})
}

// expandConfigEnvVars expands environment variables in connection strings and paths
func expandConfigEnvVars(config *Config) {
	config.Driver = expandEnvVars(config.Driver)
	config.DSN = expandEnvVars(config.DSN)
	config.GDBMacros = expandEnvVars(config.GDBMacros)
	config.GDBBinary = expandEnvVars(config.GDBBinary)
	config.ArtifactDir = expandEnvVars(config.ArtifactDir)
	config.JUnitReport = expandEnvVars(config.JUnitReport)
	config.MetricsFile = expandEnvVars(config.MetricsFile)

	for _, actions := range [][]PhaseAction{config.Init, config.Final} {
		for i := range actions {
			actions[i].DSN = expandEnvVars(actions[i].DSN)
			actions[i].Driver = expandEnvVars(actions[i].Driver)
			actions[i].Script = expandEnvVars(actions[i].Script)
		}
	}
}

package sqlcycle

import "errors"

// Common errors used throughout the sqlcycle packages
var (
	// ErrConfigValidation is returned when configuration validation fails
	ErrConfigValidation = errors.New("configuration validation failed")
	// ErrUnsupportedConfigFormat indicates the config file extension is not yaml, yml or toml.
	ErrUnsupportedConfigFormat = errors.New("unsupported configuration file format")
	// ErrUnknownDriver indicates a driver name could not be mapped to a supported database.
	ErrUnknownDriver = errors.New("unknown database driver")
	// ErrUnknownPhase indicates a phase name other than init, test or final.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrMissingDSN indicates a target was declared without a connection string.
	ErrMissingDSN = errors.New("missing dsn")

	// Phase errors

	// ErrActionKind indicates a phase action declared both or neither of sql/script.
	ErrActionKind = errors.New("phase action must declare exactly one of sql or script")
	// ErrScriptRender indicates a script template could not be rendered.
	ErrScriptRender = errors.New("failed to render script")

	// Test case errors

	// ErrEmptyQuery indicates a test case has no query text.
	ErrEmptyQuery = errors.New("test case query is empty")
	// ErrConflictingExpectations indicates a test case declared both expect_result and expect_error.
	ErrConflictingExpectations = errors.New("test case declares both expect_result and expect_error")
	// ErrNoTestCasesFound indicates no test cases matched the active key filter.
	ErrNoTestCasesFound = errors.New("no test cases found matching key")

	// Debugger hook errors

	// ErrDebuggerNotConfigured indicates run_gdb_after was set without gdb_macros.
	ErrDebuggerNotConfigured = errors.New("run_gdb_after requires gdb_macros")
	// ErrCycleOutOfRange indicates a run_gdb_after entry outside 1..cycles.
	ErrCycleOutOfRange = errors.New("cycle number out of range")
)

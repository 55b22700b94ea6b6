package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/shibukawa/sqlcycle/connection"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shibukawa/sqlcycle/logging"
	"go.uber.org/zap"
)

var version = "v0.1.0"

// Context represents the global context for commands
type Context struct {
	Config  string
	Verbose bool
	Stdout  io.Writer
	Logger  *zap.Logger
	// Opener overrides how connections are opened; nil uses the real drivers.
	Opener connection.Opener
}

// CLI represents the command-line interface
var CLI struct {
	Config   string      `help:"Suite configuration file (yaml or toml)" default:"sqlcycle.yaml" short:"c" type:"path"`
	Verbose  bool        `help:"Enable debug logging" short:"v"`
	JSONLog  bool        `help:"Write logs as JSON lines" name:"json-log"`
	Run      RunCmd      `cmd:"" help:"Run the init, test and final phases"`
	Validate ValidateCmd `cmd:"" help:"Validate the suite configuration without connecting"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run(ctx *Context) error {
	fmt.Fprintf(ctx.Stdout, "sqlcycle %s\n", version)
	return nil
}

// exitCode maps the result of a command to the process status
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrCasesFailed):
		return 2
	default:
		return 1
	}
}

// reportError prints err. A fatal run failure prints its full diagnostic to
// stdout; everything else is a one-line message on stderr.
func reportError(stdout, stderr io.Writer, err error) {
	if fe, ok := executor.AsFatal(err); ok {
		fmt.Fprintln(stdout, fe.Diagnostic())
		return
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlcycle"),
		kong.Description("Cyclic SQL acceptance test runner"),
		kong.UsageOnError())

	logger := logging.New(logging.Options{Verbose: CLI.Verbose, JSON: CLI.JSONLog})
	defer logger.Sync() //nolint:errcheck

	appCtx := &Context{
		Config:  CLI.Config,
		Verbose: CLI.Verbose,
		Stdout:  os.Stdout,
		Logger:  logger,
	}

	err := ctx.Run(appCtx)
	if err != nil {
		reportError(os.Stdout, os.Stderr, err)
		logger.Sync() //nolint:errcheck
		os.Exit(exitCode(err))
	}
}

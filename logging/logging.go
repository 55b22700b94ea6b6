// Package logging builds the zap logger shared by the command and the engine.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options select the logger output
type Options struct {
	// Verbose enables debug level logging.
	Verbose bool
	// JSON switches from the console encoder to JSON lines.
	JSON bool
	// Writer receives the log output. Defaults to stderr.
	Writer io.Writer
}

// New creates a logger. Logs go to stderr by default so that they never mix
// with the formatted report on stdout.
func New(opts Options) *zap.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := zap.InfoLevel
	if opts.Verbose {
		level = zap.DebugLevel
	}

	var encoder zapcore.Encoder

	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		config := zap.NewDevelopmentEncoderConfig()
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

		if opts.Writer != nil {
			config.EncodeLevel = zapcore.CapitalLevelEncoder
		}

		encoder = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), level)

	return zap.New(core)
}

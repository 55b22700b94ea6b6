// Package debughook attaches an external debugger to a server backend and
// stores its raw output as a per-cycle artifact.
package debughook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// ErrDebugger indicates the debugger process failed
var ErrDebugger = errors.New("debugger invocation failed")

// GDB runs gdb in batch mode with a macro file against a backend pid
type GDB struct {
	binary       string
	macros       string
	artifactPath func(cycle int) string
	logger       *zap.Logger
}

// NewGDB creates a hook. artifactPath maps a cycle number to the output file.
func NewGDB(binary, macros string, artifactPath func(cycle int) string, logger *zap.Logger) *GDB {
	if binary == "" {
		binary = "gdb"
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &GDB{binary: binary, macros: macros, artifactPath: artifactPath, logger: logger}
}

// Args returns the debugger command line arguments
func (g *GDB) Args(pid uint32) []string {
	return []string{"-p", strconv.FormatUint(uint64(pid), 10), "-batch", "-x", g.macros}
}

// Run attaches to pid and writes the combined output to the artifact of
// cycle. The artifact is written even when the debugger fails.
func (g *GDB) Run(ctx context.Context, pid uint32, cycle int) error {
	cmd := exec.CommandContext(ctx, g.binary, g.Args(pid)...)
	out, runErr := cmd.CombinedOutput()

	path := g.artifactPath(cycle)
	if err := writeArtifact(path, out); err != nil {
		return err
	}

	g.logger.Info("debugger artifact written",
		zap.Int("cycle", cycle),
		zap.Uint32("pid", pid),
		zap.String("path", path),
		zap.Int("bytes", len(out)))

	if runErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrDebugger, g.binary, runErr)
	}

	return nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}

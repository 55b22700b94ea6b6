package connection

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/shibukawa/sqlcycle"
	"go.uber.org/zap"
)

// Mode selects the handle lifecycle of a Provider
type Mode int

const (
	// ModeSingle opens one handle per target on first use and keeps it for the run.
	ModeSingle Mode = iota
	// ModePerCall opens a fresh handle on every acquisition and closes it on release.
	ModePerCall
)

func (m Mode) String() string {
	if m == ModePerCall {
		return "per-call"
	}

	return "single"
}

// ParseMode maps the CLI/config spelling to a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "single":
		return ModeSingle, nil
	case "per-call", "percall":
		return ModePerCall, nil
	default:
		return ModeSingle, fmt.Errorf("unknown connection mode %q", s)
	}
}

// Release returns a handle obtained from Acquire
type Release func()

// Provider supplies handles to the engine. It is owned by a single run and is
// not safe for concurrent use.
type Provider struct {
	open    Opener
	mode    Mode
	logger  *zap.Logger
	handles map[sqlcycle.Target]Handle
	order   []sqlcycle.Target
}

// NewProvider creates a provider. A nil opener selects Open.
func NewProvider(open Opener, mode Mode, logger *zap.Logger) *Provider {
	if open == nil {
		open = Open
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		open:    open,
		mode:    mode,
		logger:  logger,
		handles: make(map[sqlcycle.Target]Handle),
	}
}

// Mode returns the lifecycle mode of the provider
func (p *Provider) Mode() Mode {
	return p.mode
}

// Acquire returns a handle for target. The caller must invoke the returned
// Release once it is done with the handle. Failure to open is not retried.
func (p *Provider) Acquire(ctx context.Context, target sqlcycle.Target) (Handle, Release, error) {
	if p.mode == ModeSingle {
		if h, ok := p.handles[target]; ok {
			return h, func() {}, nil
		}
	}

	h, err := p.open(ctx, target)
	if err != nil {
		return nil, nil, err
	}

	p.logger.Debug("connection opened",
		zap.Stringer("target", target),
		zap.Stringer("mode", p.mode),
		zap.Uint32("pid", h.PID()))

	if p.mode == ModeSingle {
		p.handles[target] = h
		p.order = append(p.order, target)

		return h, func() {}, nil
	}

	return h, func() {
		if err := h.Close(ctx); err != nil {
			p.logger.Warn("failed to close connection", zap.Stringer("target", target), zap.Error(err))
		}
	}, nil
}

// Close closes every handle held in single mode
func (p *Provider) Close(ctx context.Context) error {
	var result *multierror.Error

	for _, target := range p.order {
		if err := p.handles[target].Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", target, err))
		}

		delete(p.handles, target)
	}

	p.order = nil

	return result.ErrorOrNil()
}

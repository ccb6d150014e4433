// Package logging builds the leveled console logger used across equicheck.
// Verbosity has three steps: brief shows components and check results,
// normal adds workflow state between components, verbose adds raw output
// from external tools.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity selects how much of the workflow is logged.
type Verbosity int

const (
	// Brief logs components and per-pair verdicts only.
	Brief Verbosity = iota
	// Normal additionally logs workflow state after each component.
	Normal
	// Verbose additionally streams stderr of external tools.
	Verbose
)

// ParseVerbosity maps the --log flag value onto a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "brief":
		return Brief, nil
	case "normal", "":
		return Normal, nil
	case "verbose":
		return Verbose, nil
	default:
		return Normal, fmt.Errorf("unknown log level %q (want brief, normal or verbose)", s)
	}
}

// String implements fmt.Stringer.
func (v Verbosity) String() string {
	switch v {
	case Brief:
		return "brief"
	case Normal:
		return "normal"
	case Verbose:
		return "verbose"
	default:
		return "unknown"
	}
}

// Streams reports whether external tool output should be forwarded to the log.
func (v Verbosity) Streams() bool { return v >= Verbose }

// New builds the console logger for the given verbosity. Brief keeps the
// log at Info and components log state at Debug, so brief output stays
// short without hiding verdicts.
func New(v Verbosity) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if v >= Normal {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Package logger wraps logr/zap for diagnostic tracing across the PKD
// validation pipeline. It is never used for control flow.
package logger

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the logger handle passed through the validation pipeline.
type Log struct {
	logr.Logger
}

// New creates a logger based on the target environment.
func New(name, logPath string, production bool) (*Log, error) {
	var zc zap.Config

	switch production {
	case true:
		zc = zap.NewProductionConfig()
	case false:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc.DisableCaller = true
	zc.DisableStacktrace = true

	if logPath != "" {
		if err := os.MkdirAll(logPath, fs.ModeDir); err != nil {
			return nil, err
		}

		zc.OutputPaths = []string{
			filepath.Join(logPath, fmt.Sprintf("%s.log", name)),
		}
	}

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}

	log := zapr.NewLogger(z)

	return &Log{Logger: log.WithName(name)}, nil
}

// NewSimple creates a best-effort logger for call sites without a
// configured environment (config parsing, package-level helpers).
func NewSimple(name string) *Log {
	return &Log{Logger: zapr.NewLogger(zap.L().Named(name))}
}

// New creates a sub-logger of the receiver.
func (l *Log) New(path string) *Log {
	if l == nil {
		return NewSimple(path)
	}
	return &Log{Logger: l.WithName(path)}
}

// Info logs at the default verbosity.
func (l *Log) Info(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.V(0).WithValues(args...).Info(msg)
}

// Debug logs at elevated verbosity (chain-building, provider calls).
func (l *Log) Debug(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.V(1).WithValues(args...).Info(msg)
}

// Trace logs at the highest verbosity (per-candidate signature checks).
func (l *Log) Trace(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.V(2).WithValues(args...).Info(msg)
}

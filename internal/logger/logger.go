// Package logger builds the zap logger shared by every component of a run.
package logger

import (
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	// Debug lowers the level to debug.
	Debug bool
	// Quiet raises the level to warn. Ignored when Debug is set.
	Quiet bool
	// JSON selects the production JSON encoder over the console encoder.
	JSON bool
	// Output receives log lines. Defaults to stderr so stdout stays free for
	// the report.
	Output io.Writer
	// RunID tags every line. A random id is generated when empty.
	RunID string
}

// New builds a logger from cfg. Every line carries a run_id field.
func New(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	switch {
	case cfg.Debug:
		level = zapcore.DebugLevel
	case cfg.Quiet:
		level = zapcore.WarnLevel
	}

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), zap.NewAtomicLevelAt(level))
	return zap.New(core).With(zap.String("run_id", runID))
}

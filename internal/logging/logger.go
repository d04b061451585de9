// Package logging owns the process-wide zap logger.
package logging

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names used across the marketplace.
const (
	FieldJobID      = "job_id"
	FieldRequestID  = "request_id"
	FieldIdentity   = "identity"
	FieldRole       = "role"
	FieldStatus     = "status"
	FieldAmount     = "amount"
	FieldComponent  = "component"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldErrorCode  = "error_code"
	FieldAddress    = "address"
	FieldSubscriber = "subscriber_id"
)

// Logger is a no-op until Initialize runs, so packages can log from tests
// and init paths without a nil check.
var Logger = zap.NewNop().Sugar()

// Initialize replaces Logger. format is "json" or "console"; level is any
// zap level name.
func Initialize(level, format string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}

	var cfg zap.Config
	switch format {
	case "json", "":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return errors.Newf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "build logger")
	}

	Logger = zl.Sugar()
	return nil
}

// ComponentLogger returns a named child of Logger for dependency injection.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes buffered entries; call it before the process exits.
func Sync() {
	_ = Logger.Sync()
}

// Package logging builds the application zap logger.
package logging

import (
	"os"

	"github.com/nvr-ai/go-motion/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logger from the logging configuration.
//
// Console format writes colored, human readable lines; json format writes one
// JSON object per line. When cfg.File is set, output goes to a size-rotated
// file instead of stderr.
//
// Arguments:
//   - cfg: Level, format and optional rotating file settings.
//
// Returns:
//   - *zap.Logger: The logger. Call Sync before exit.
//   - error: An unknown level.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "logging.level %q", cfg.Level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		if cfg.File == "" {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	var out zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if cfg.File != "" {
		out = zapcore.AddSync(RotatingFile(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays))
	}

	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

// RotatingFile returns a writer that rotates the file at path once it grows
// past maxSizeMB.
func RotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

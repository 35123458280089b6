package sink

import (
	"context"
	"io"

	"github.com/nvr-ai/go-motion/logging"
	"github.com/nvr-ai/go-motion/motion"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventLog writes one JSON line per verified detection to a rotating file.
type EventLog struct {
	logger *zap.Logger
	closer io.Closer
}

// NewEventLog opens a rotating JSON event log at path.
func NewEventLog(path string, maxSizeMB, maxBackups, maxAgeDays int) *EventLog {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = ""
	encoderCfg.CallerKey = ""
	encoderCfg.LevelKey = ""
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	file := logging.RotatingFile(path, maxSizeMB, maxBackups, maxAgeDays)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.InfoLevel)
	return &EventLog{logger: zap.New(core), closer: file}
}

// NewEventLogWithLogger writes events through an existing logger.
func NewEventLogWithLogger(logger *zap.Logger) *EventLog {
	return &EventLog{logger: logger}
}

// Handle logs the report as a detection event.
func (l *EventLog) Handle(_ context.Context, report *motion.Report) error {
	msg := "verified motion"
	if !report.HasDetections() {
		msg = "manual save"
	}

	regions := make([]string, 0, len(report.Regions))
	for _, r := range report.Regions {
		regions = append(regions, r.String())
	}

	l.logger.Info(msg,
		zap.Time("timestamp", report.Timestamp),
		zap.Uint64("frame", report.FrameIndex),
		zap.Int("objects", len(report.Regions)),
		zap.Int("humans", report.HumanCount()),
		zap.Int("total_area", report.TotalArea()),
		zap.Float32("threshold", report.CutLevel),
		zap.Float64("avg_diff", report.Stats.DiffMean),
		zap.Strings("regions", regions))
	return nil
}

// Close flushes the log and closes its file.
func (l *EventLog) Close() error {
	err := l.logger.Sync()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Package sink provides the report consumers: alert gating, frame saving,
// the rotating event log and the sqlite event store.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/nvr-ai/go-motion/controller"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/pkg/errors"
)

// Gate forwards alert-worthy reports to its sinks.
//
// A report is forwarded when it has confirmed regions and at least cooldown
// has passed since the previous forwarded alert, measured on report
// timestamps. Manual save requests are always forwarded and do not restart
// the cooldown.
type Gate struct {
	cooldown time.Duration
	sinks    []controller.Sink

	mu        sync.Mutex
	lastAlert time.Time
	alerts    uint64
}

// NewGate creates a gate in front of sinks.
func NewGate(cooldown time.Duration, sinks ...controller.Sink) *Gate {
	return &Gate{cooldown: cooldown, sinks: sinks}
}

// Handle forwards report to every sink when it passes the gate. All sinks are
// called even if one fails; the errors are joined.
func (g *Gate) Handle(ctx context.Context, report *motion.Report) error {
	if !g.admit(report) {
		return nil
	}

	var errs []error
	for _, s := range g.sinks {
		if err := s.Handle(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Wrapf(errs[0], "%d sinks failed, first", len(errs))
	}
}

// Alerts is the number of detections forwarded so far.
func (g *Gate) Alerts() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alerts
}

func (g *Gate) admit(report *motion.Report) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if report.HasDetections() {
		if g.alerts == 0 || report.Timestamp.Sub(g.lastAlert) > g.cooldown {
			g.lastAlert = report.Timestamp
			g.alerts++
			return true
		}
	}
	return report.ManualSave
}

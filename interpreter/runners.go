package interpreter

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/machinestore/chart"
)

// DefaultActionRunner runs inline actions. Named actions reach it only when
// the machine has no implementation for the name, which is an error.
type DefaultActionRunner struct{}

// Run executes the given action reference.
func (r *DefaultActionRunner) Run(ctx *chart.Context, action chart.ActionRef, event chart.Event) error {
	switch a := action.(type) {
	case nil:
		return nil
	case chart.ActionFunc:
		a(ctx, event)
		return nil
	case func(*chart.Context, chart.Event):
		a(ctx, event)
		return nil
	case string:
		return fmt.Errorf("action %q not implemented", a)
	default:
		return fmt.Errorf("unknown action type: %T", action)
	}
}

// LoggingActionRunner wraps an ActionRunner and logs around execution.
type LoggingActionRunner struct {
	inner  ActionRunner
	logger *zap.Logger
}

// NewLoggingActionRunner creates a LoggingActionRunner wrapping inner.
func NewLoggingActionRunner(inner ActionRunner, logger *zap.Logger) *LoggingActionRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingActionRunner{inner: inner, logger: logger}
}

// Run logs before and after delegating to the inner runner.
func (r *LoggingActionRunner) Run(ctx *chart.Context, action chart.ActionRef, event chart.Event) error {
	name := describeRef(action)
	r.logger.Debug("executing action", zap.String("action", name), zap.String("event", event.Type))
	start := time.Now()
	err := r.inner.Run(ctx, action, event)
	r.logger.Debug("action completed",
		zap.String("action", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return err
}

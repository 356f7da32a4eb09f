package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/comalice/machinestore"
	"github.com/comalice/machinestore/chart"
	"github.com/comalice/machinestore/internal/config"
	"github.com/comalice/machinestore/internal/logging"
	"github.com/comalice/machinestore/internal/production"
	"github.com/comalice/machinestore/interpreter"
	"github.com/comalice/machinestore/lifecycle"
)

// settings are the persistent flag values; empty fields fall back to the
// environment.
type settings struct {
	debug    bool
	stateDir string
	format   string
}

// app carries state shared by all subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func (a *app) init(ctx context.Context, s settings) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if s.stateDir != "" {
		cfg.StateDir = s.stateDir
	}
	if s.format != "" {
		cfg.Format = s.format
	}
	if s.debug {
		cfg.LogLevel = logging.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// logToFile redirects logging into the state directory, used while a TUI
// owns the terminal.
func (a *app) logToFile() error {
	if err := os.MkdirAll(a.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", a.cfg.StateDir, err)
	}
	logger, err := logging.New(a.cfg.LogLevel, filepath.Join(a.cfg.StateDir, "machinectl.log"))
	if err != nil {
		return err
	}
	a.close()
	a.logger = logger
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// loadDefinition reads a YAML machine definition. Top-level states may omit
// their id; it defaults to the map key.
func loadDefinition(path string) (chart.MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chart.MachineConfig{}, err
	}
	var def chart.MachineConfig
	if err := yaml.Unmarshal(data, &def); err != nil {
		return chart.MachineConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	for key, state := range def.States {
		if state != nil && state.ID == "" {
			state.ID = key
		}
	}
	if err := def.Validate(); err != nil {
		return chart.MachineConfig{}, fmt.Errorf("invalid definition %s: %w", path, err)
	}
	return def, nil
}

// loadMachine builds a machine from a definition file with the built-in
// implementations.
func (a *app) loadMachine(path string) (*interpreter.Machine, error) {
	def, err := loadDefinition(path)
	if err != nil {
		return nil, err
	}
	return interpreter.NewMachine(def, builtins(a.log()))
}

func (a *app) persister() (interpreter.Persister, error) {
	return production.NewPersister(a.cfg.Format, a.cfg.StateDir)
}

// savedState returns the persisted snapshot for machine, or nil when none
// exists yet.
func (a *app) savedState(ctx context.Context, m *interpreter.Machine) (*interpreter.Snapshot, error) {
	p, err := a.persister()
	if err != nil {
		return nil, err
	}
	snap, err := p.Load(ctx, m.ID())
	if errors.Is(err, os.ErrNotExist) {
		a.log().Debug("no saved state, starting fresh", zap.String("machine", m.ID()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// bindOptions controls how a machine is bound to a component.
type bindOptions struct {
	resume  bool
	persist bool
	extra   []interpreter.Option
}

// bind starts m for the lifetime of scope.
func (a *app) bind(ctx context.Context, scope lifecycle.Scope, m *interpreter.Machine, o bindOptions) (*machinestore.Binding, error) {
	iopts := []interpreter.Option{
		interpreter.WithLogger(a.log()),
		interpreter.WithGuardEvaluator(interpreter.NewExpressionGuardEvaluator()),
	}
	if a.cfg.LogLevel == logging.LevelDebug {
		iopts = append(iopts, interpreter.WithActionRunner(
			interpreter.NewLoggingActionRunner(&interpreter.DefaultActionRunner{}, a.log())))
	}
	opts := []machinestore.Option{}

	if o.resume {
		saved, err := a.savedState(ctx, m)
		if err != nil {
			return nil, err
		}
		if saved != nil {
			opts = append(opts, machinestore.WithState(*saved))
		}
	}
	if o.persist {
		p, err := a.persister()
		if err != nil {
			return nil, err
		}
		iopts = append(iopts, interpreter.WithPersister(p))
	}
	iopts = append(iopts, o.extra...)
	opts = append(opts, machinestore.WithInterpreterOptions(iopts...))

	return machinestore.UseMachine(scope, m, opts...)
}

// builtins are the implementations definitions can reference by name.
func builtins(logger *zap.Logger) interpreter.Implementations {
	return interpreter.Implementations{
		Actions: map[string]chart.ActionFunc{
			"log": func(ctx *chart.Context, evt chart.Event) {
				logger.Info("action", zap.String("event", evt.Type), zap.Any("data", evt.Data), zap.Any("context", ctx.Snapshot()))
			},
			"increment": increment,
			"reset": func(ctx *chart.Context, _ chart.Event) {
				ctx.Set("count", 0)
			},
		},
	}
}

// increment adds one to the context count. Counts decoded from JSON
// snapshots are float64.
func increment(ctx *chart.Context, _ chart.Event) {
	v, _ := ctx.Get("count")
	switch n := v.(type) {
	case int:
		ctx.Set("count", n+1)
	case int64:
		ctx.Set("count", n+1)
	case float64:
		ctx.Set("count", n+1)
	default:
		ctx.Set("count", 1)
	}
}

// formatContext renders a context as sorted key=value pairs.
func formatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, ctx[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

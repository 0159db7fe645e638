// Package orchestrator runs phases: it resolves a phase's prerequisites,
// runs each phase's steps in order, stops at the first failure and records
// what happened.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/phase"
	"github.com/kingrea/stubflow/internal/phase/resolver"
	"github.com/kingrea/stubflow/internal/step"
)

// Journal receives one human readable line per dispatch event.
type Journal interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Orchestrator dispatches phases of a validated graph. Dispatch calls are
// serialized.
type Orchestrator struct {
	mu sync.Mutex

	resolver      *resolver.Resolver
	steps         map[string][]step.Step
	sctx          *step.Context
	store         RecordStore
	journal       Journal
	logger        *zap.Logger
	clock         func() time.Time
	newID         func() string
	prerequisites bool
}

// Option customizes the orchestrator instance.
type Option func(*Orchestrator)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRecordStore persists each dispatch report.
func WithRecordStore(store RecordStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithJournal appends dispatch events to a run journal.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithoutPrerequisites makes Dispatch run only the requested phase.
func WithoutPrerequisites() Option {
	return func(o *Orchestrator) { o.prerequisites = false }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New validates def, instantiates every step through reg and returns an
// orchestrator. Cycles, undeclared requirements and unregistered operations
// are all reported here, before anything runs.
func New(def phase.Definition, reg *step.Registry, sctx *step.Context, opts ...Option) (*Orchestrator, error) {
	if reg == nil {
		return nil, fmt.Errorf("orchestrator: step registry is required")
	}
	if sctx == nil {
		return nil, fmt.Errorf("orchestrator: step context is required")
	}
	res, err := resolver.New(def)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		resolver:      res,
		steps:         make(map[string][]step.Step, len(def.Phases)),
		sctx:          sctx,
		logger:        zap.NewNop(),
		clock:         time.Now,
		newID:         uuid.NewString,
		prerequisites: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, p := range res.Definition().Phases {
		instances := make([]step.Step, 0, len(p.Steps))
		for i, ref := range p.Steps {
			if !reg.Has(ref.Op) {
				return nil, fmt.Errorf("%w: phase %s step[%d]: unknown operation %s", phase.ErrInvalidDefinition, p.Name, i, ref.Op)
			}
			s, err := reg.Resolve(ref.Op, step.Config(ref.With).Clone())
			if err != nil {
				return nil, fmt.Errorf("%w: phase %s step[%d]: %w", phase.ErrInvalidDefinition, p.Name, i, err)
			}
			instances = append(instances, s)
		}
		o.steps[p.Name] = instances
	}
	return o, nil
}

// Phases returns the graph's phases in declaration order.
func (o *Orchestrator) Phases() []phase.Phase {
	return o.resolver.Definition().Phases
}

// Plan returns the phases Dispatch(name) would run, in order.
func (o *Orchestrator) Plan(name string) ([]string, error) {
	return o.resolver.Plan(name, o.prerequisites)
}

// Dispatch runs the named phase after its prerequisites. The first failing
// phase ends the dispatch; phases after it are reported as skipped. The
// returned error is a *PhaseError for step failures.
func (o *Orchestrator) Dispatch(ctx context.Context, name string) (Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := Report{
		RunID:     o.newID(),
		Target:    name,
		DryRun:    o.sctx.DryRun,
		StartedAt: o.clock(),
	}
	log := o.logger.With(zap.String("run_id", report.RunID), zap.String("target", name))

	plan, err := o.resolver.Plan(name, o.prerequisites)
	if err != nil {
		return o.finish(log, report, err), err
	}
	report.Plan = plan
	log.Info("dispatching", zap.Strings("plan", plan))
	o.journalInfo("run %s: %s planned as %s", report.RunID, name, strings.Join(plan, " -> "))

	var dispatchErr error
	for _, phaseName := range plan {
		if dispatchErr != nil {
			report.Phases = append(report.Phases, o.skippedPhase(phaseName))
			continue
		}
		if err := ctx.Err(); err != nil {
			dispatchErr = fmt.Errorf("orchestrator: %s not started: %w", phaseName, err)
			report.Phases = append(report.Phases, o.skippedPhase(phaseName))
			continue
		}
		pr, err := o.runPhase(ctx, log, phaseName)
		report.Phases = append(report.Phases, pr)
		if err != nil {
			dispatchErr = err
		}
	}
	return o.finish(log, report, dispatchErr), dispatchErr
}

func (o *Orchestrator) runPhase(ctx context.Context, log *zap.Logger, name string) (PhaseReport, error) {
	p, _ := o.resolver.Phase(name)
	sctx := o.sctx.WithContext(ctx).WithPhase(name)
	log = log.With(zap.String("phase", name))
	started := o.clock()
	pr := PhaseReport{Name: name, Status: StatusSucceeded}
	log.Info("phase started")

	var phaseErr *PhaseError
	var failures error
	for i, s := range o.steps[name] {
		info := s.Info()
		sr := StepReport{Op: info.ID, Name: info.Name}
		if phaseErr != nil && !p.Aggregate {
			sr.Status = StatusSkipped
			pr.Steps = append(pr.Steps, sr)
			continue
		}
		stepStarted := o.clock()
		err := s.Run(sctx)
		sr.Duration = o.clock().Sub(stepStarted)
		sr.Error = errorString(err)
		switch {
		case err == nil:
			sr.Status = StatusSucceeded
		case info.Tolerated(err):
			sr.Status = StatusSatisfied
			log.Info("step already satisfied", zap.String("op", info.ID), zap.Error(err))
		default:
			sr.Status = StatusFailed
			log.Error("step failed", zap.String("op", info.ID), zap.Int("index", i), zap.Error(err))
			failures = multierr.Append(failures, err)
			if phaseErr == nil {
				phaseErr = &PhaseError{Phase: name, Op: info.ID, Index: i}
			}
		}
		pr.Steps = append(pr.Steps, sr)
	}
	pr.Duration = o.clock().Sub(started)
	if phaseErr == nil {
		log.Info("phase succeeded", zap.Duration("duration", pr.Duration))
		o.journalInfo("phase %s succeeded", name)
		return pr, nil
	}
	phaseErr.Err = failures
	pr.Status = StatusFailed
	pr.Error = phaseErr.Error()
	o.journalError("phase %s failed: %v", name, failures)
	return pr, phaseErr
}

func (o *Orchestrator) skippedPhase(name string) PhaseReport {
	pr := PhaseReport{Name: name, Status: StatusSkipped}
	for _, s := range o.steps[name] {
		info := s.Info()
		pr.Steps = append(pr.Steps, StepReport{Op: info.ID, Name: info.Name, Status: StatusSkipped})
	}
	return pr
}

func (o *Orchestrator) finish(log *zap.Logger, report Report, err error) Report {
	report.FinishedAt = o.clock()
	report.Status = StatusSucceeded
	report.Error = errorString(err)
	if err != nil {
		report.Status = StatusFailed
		log.Error("dispatch failed", zap.Error(err))
		o.journalError("run %s: %s failed: %v", report.RunID, report.Target, err)
	} else {
		log.Info("dispatch succeeded", zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
		o.journalInfo("run %s: %s succeeded", report.RunID, report.Target)
	}
	if o.store != nil {
		if saveErr := o.store.Save(report); saveErr != nil {
			log.Warn("could not save run record", zap.Error(saveErr))
		}
	}
	return report
}

func (o *Orchestrator) journalInfo(format string, args ...any) {
	if o.journal != nil {
		o.journal.Info(format, args...)
	}
}

func (o *Orchestrator) journalError(format string, args ...any) {
	if o.journal != nil {
		o.journal.Error(format, args...)
	}
}

// IsUnknownPhase reports whether err came from dispatching an undeclared
// phase.
func IsUnknownPhase(err error) bool {
	return errors.Is(err, phase.ErrUnknownPhase)
}

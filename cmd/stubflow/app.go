package main

import (
	"github.com/kingrea/stubflow/internal/config"
	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/logbook"
	"github.com/kingrea/stubflow/internal/orchestrator"
	"github.com/kingrea/stubflow/internal/phase"
	"github.com/kingrea/stubflow/internal/step"
	"github.com/kingrea/stubflow/internal/steps"
)

// app is everything one command needs for a checkout.
type app struct {
	cfg     *config.Config
	sctx    *step.Context
	orch    *orchestrator.Orchestrator
	book    *logbook.Logbook
	records *orchestrator.Repository
}

// open loads configuration and the phase graph and wires the orchestrator.
// Graph problems, cycles included, surface here before any tool runs.
func (c *cli) open() (*app, error) {
	dir, err := c.projectDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir, c.configPath)
	if err != nil {
		return nil, err
	}
	if c.releaseVersion != "" {
		cfg.Project.ReleaseVersion = c.releaseVersion
	}
	def, err := phase.Load(cfg.PhasesPath())
	if err != nil {
		return nil, err
	}

	logger := c.logger
	var inv invoker.Invoker = invoker.DryRun{Out: c.stdout}
	if !c.dryRun {
		inv = c.newInvoker(logger, c.stdout, c.stderr)
	}
	sctx, err := step.NewContext(cfg, inv, c.dryRun, logger)
	if err != nil {
		return nil, err
	}
	book, err := logbook.New(cfg.LogPath())
	if err != nil {
		return nil, err
	}
	book.WithClock(c.now)
	records := orchestrator.NewRepository(cfg.RecordPath())
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithRecordStore(records),
		orchestrator.WithJournal(book),
		orchestrator.WithClock(c.now),
	}
	if c.noDeps {
		opts = append(opts, orchestrator.WithoutPrerequisites())
	}
	orch, err := orchestrator.New(def, steps.NewRegistry(), sctx, opts...)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, sctx: sctx, orch: orch, book: book, records: records}, nil
}

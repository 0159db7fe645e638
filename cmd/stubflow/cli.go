package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/stubflow/internal/config"
	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/invoker"
	"github.com/kingrea/stubflow/internal/orchestrator"
	"github.com/kingrea/stubflow/internal/phase"
	"github.com/kingrea/stubflow/internal/tui"
)

// cli holds the global flags and the seams tests replace.
type cli struct {
	project        string
	configPath     string
	dryRun         bool
	noDeps         bool
	verbose        bool
	releaseVersion string

	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger

	// newInvoker builds the tool invoker for a real (non dry) run.
	newInvoker func(logger *zap.Logger, stdout, stderr io.Writer) invoker.Invoker
	// pick chooses a phase interactively.
	pick func(phases []phase.Phase) (string, error)
	// now stamps run records and journal entries.
	now func() time.Time
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		newInvoker: func(logger *zap.Logger, stdout, stderr io.Writer) invoker.Invoker {
			return invoker.NewExec(logger.Named("invoker"), invoker.WithOutput(stdout, stderr))
		},
		pick: func(phases []phase.Phase) (string, error) { return tui.Pick(phases) },
		now:  time.Now,
	}
}

// run executes the CLI and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := newCLI(stdout, stderr)
	return c.execute(ctx, args)
}

func (c *cli) execute(ctx context.Context, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	err := root.ExecuteContext(ctx)
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintf(c.stderr, "stubflow: %v\n", err)
	return orchestrator.ExitCode(err)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stubflow [phase]",
		Short: "Development workflow orchestrator for freecad-stub-gen",
		Long: `stubflow runs the development workflow of freecad-stub-gen as named phases.

Each phase declares the phases it requires; running a phase runs its
prerequisites first, every time. A failing step stops the run.

Run "stubflow list" to see every phase.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return c.dispatch(cmd.Context(), args[0])
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.project, "project", "p", "", "Project directory (default: current)")
	flags.StringVarP(&c.configPath, "config", "c", "", "Config file (default: <project>/.stubflow/config.yaml)")
	flags.BoolVarP(&c.dryRun, "dry-run", "n", false, "Print tool invocations instead of running them")
	flags.BoolVar(&c.noDeps, "no-deps", false, "Run only the named phase, not its prerequisites")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&c.releaseVersion, "release-version", "", "Version for release_changelog: X.Y.Z, major, minor or patch")

	root.AddCommand(
		c.runCmd(),
		c.listCmd(),
		c.planCmd(),
		c.pickCmd(),
		c.initCmd(),
		c.historyCmd(),
	)
	return root
}

func (c *cli) initLogger() error {
	if c.logger != nil {
		return nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if c.verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.logger = logger
	return nil
}

func (c *cli) projectDir() (string, error) {
	if c.project != "" {
		return filepath.Abs(c.project)
	}
	return os.Getwd()
}

func (c *cli) dispatch(ctx context.Context, name string) error {
	a, err := c.open()
	if err != nil {
		return err
	}
	report, err := a.orch.Dispatch(ctx, name)
	if len(report.Phases) > 0 {
		fmt.Fprint(c.stdout, tui.RenderReport(report))
	}
	return err
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <phase>",
		Short: "Run a phase after its prerequisites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.dispatch(cmd.Context(), args[0])
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every phase with its prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, tui.RenderPhaseTable(a.orch.Phases()))
			return nil
		},
	}
}

func (c *cli) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <phase>",
		Short: "Print the phases a run would execute, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			plan, err := a.orch.Plan(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(c.stdout, tui.RenderPlan(plan))
			return nil
		},
	}
}

func (c *cli) pickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Choose a phase interactively and run it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			name, err := c.pick(a.orch.Phases())
			if errors.Is(err, tui.ErrCancelled) {
				return nil
			}
			if err != nil {
				return err
			}
			report, err := a.orch.Dispatch(cmd.Context(), name)
			if len(report.Phases) > 0 {
				fmt.Fprint(c.stdout, tui.RenderReport(report))
			}
			return err
		},
	}
}

func (c *cli) initCmd() *cobra.Command {
	var withPhases bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .stubflow/ with a default config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.projectDir()
			if err != nil {
				return err
			}
			if err := config.Init(dir); err != nil {
				return err
			}
			cfg, err := config.Load(dir, c.configPath)
			if err != nil {
				return err
			}
			if withPhases {
				path := filepath.Join(cfg.StubflowDir, "phases.yaml")
				if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
					if err := os.WriteFile(path, phase.DefaultYAML(), 0o644); err != nil {
						return fmt.Errorf("write %s: %w", path, err)
					}
				}
				cfg.Project.PhasesFile = filepath.Join(config.Dir, "phases.yaml")
				if err := cfg.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(c.stdout, "initialized %s\n", cfg.StubflowDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withPhases, "phases", false, "Also write the built-in phase graph to .stubflow/phases.yaml for editing")
	return cmd
}

// printEnvironment reports whether the configured environment exists and
// what was last installed into it.
func (c *cli) printEnvironment(a *app) error {
	name := a.cfg.Project.EnvName
	e, err := a.sctx.Environment()
	if errors.Is(err, env.ErrEnvironmentNotFound) {
		fmt.Fprintf(c.stdout, "environment %s: not created\n", name)
		return nil
	}
	if err != nil {
		return err
	}
	record, installed, err := a.sctx.Provisioner.Installed(e)
	if err != nil {
		return err
	}
	if !installed {
		fmt.Fprintf(c.stdout, "environment %s: created, package not installed\n", name)
		return nil
	}
	fmt.Fprintf(c.stdout, "environment %s: %s installed %s\n",
		name, env.EditableSpec(record.Package, record.Extras), record.InstalledAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func (c *cli) historyCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the last run and the tail of the run journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			last, err := a.records.Load()
			switch {
			case err == nil:
				fmt.Fprint(c.stdout, tui.RenderReport(last))
			case errors.Is(err, orchestrator.ErrRecordNotFound):
				fmt.Fprintln(c.stdout, "no runs recorded yet")
			default:
				return err
			}
			if err := c.printEnvironment(a); err != nil {
				return err
			}
			entries, total := a.book.Entries(lines)
			fmt.Fprint(c.stdout, tui.RenderJournal(entries, total-len(entries)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "l", 20, "Journal lines to show")
	return cmd
}

// Package release prepares and publishes a release: it tidies and promotes
// the changelog, rebuilds the distribution artifacts from scratch and
// uploads them to the package index.
package release

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/kingrea/stubflow/internal/changelog"
	"github.com/kingrea/stubflow/internal/env"
	"github.com/kingrea/stubflow/internal/invoker"
)

// ErrNoArtifacts is returned when an upload finds nothing to publish.
var ErrNoArtifacts = errors.New("release: no distribution artifacts")

// Options configures a Packager.
type Options struct {
	ProjectDir  string
	Changelog   string
	DistDir     string
	DistPattern string
	Repository  string
	DryRun      bool
	Now         func() time.Time
}

// Packager drives the release tooling.
type Packager struct {
	invoker invoker.Invoker
	opts    Options
	logger  *zap.Logger
}

// NewPackager validates opts and returns a Packager.
func NewPackager(inv invoker.Invoker, opts Options, logger *zap.Logger) (*Packager, error) {
	if inv == nil {
		return nil, fmt.Errorf("release: invoker is required")
	}
	if opts.ProjectDir == "" {
		return nil, fmt.Errorf("release: project dir is required")
	}
	if opts.Changelog == "" {
		opts.Changelog = filepath.Join(opts.ProjectDir, "CHANGELOG.md")
	}
	if opts.DistDir == "" {
		opts.DistDir = filepath.Join(opts.ProjectDir, "dist")
	}
	if !insideProject(opts.ProjectDir, opts.DistDir) {
		return nil, fmt.Errorf("release: dist dir %s must lie inside %s", opts.DistDir, opts.ProjectDir)
	}
	if opts.DistPattern == "" {
		opts.DistPattern = "*"
	}
	if !doublestar.ValidatePattern(opts.DistPattern) {
		return nil, fmt.Errorf("release: invalid artifact pattern %q", opts.DistPattern)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packager{invoker: inv, opts: opts, logger: logger}, nil
}

// insideProject reports whether dir lies strictly below projectDir, the
// only place Clean is allowed to remove.
func insideProject(projectDir, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(projectDir), filepath.Clean(dir))
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Normalize rewrites escaped brackets in the changelog. It reports whether
// the file changed.
func (p *Packager) Normalize() (bool, error) {
	data, err := os.ReadFile(p.opts.Changelog)
	if err != nil {
		return false, fmt.Errorf("release: read changelog: %w", err)
	}
	out := changelog.Normalize(data)
	if string(out) == string(data) {
		return false, nil
	}
	if p.opts.DryRun {
		p.logger.Info("dry run: would normalize changelog", zap.String("path", p.opts.Changelog))
		return true, nil
	}
	if err := os.WriteFile(p.opts.Changelog, out, 0o644); err != nil {
		return false, fmt.Errorf("release: write changelog: %w", err)
	}
	p.logger.Info("normalized changelog", zap.String("path", p.opts.Changelog))
	return true, nil
}

// Release promotes the Unreleased section to the requested version, either
// an explicit version or a bump keyword, dated today.
func (p *Packager) Release(spec string) (string, error) {
	data, err := os.ReadFile(p.opts.Changelog)
	if err != nil {
		return "", fmt.Errorf("release: read changelog: %w", err)
	}
	doc, err := changelog.Parse(data)
	if err != nil {
		return "", err
	}
	version, err := doc.Release(spec, p.opts.Now())
	if err != nil {
		return "", err
	}
	if p.opts.DryRun {
		p.logger.Info("dry run: would release changelog", zap.String("version", version))
		return version, nil
	}
	if err := os.WriteFile(p.opts.Changelog, doc.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("release: write changelog: %w", err)
	}
	p.logger.Info("released changelog", zap.String("version", version))
	return version, nil
}

// Clean removes every previous artifact by recreating the dist directory.
func (p *Packager) Clean() error {
	if p.opts.DryRun {
		p.logger.Info("dry run: would clean dist", zap.String("path", p.opts.DistDir))
		return nil
	}
	if err := os.RemoveAll(p.opts.DistDir); err != nil {
		return fmt.Errorf("release: clean dist: %w", err)
	}
	if err := os.MkdirAll(p.opts.DistDir, 0o755); err != nil {
		return fmt.Errorf("release: create dist: %w", err)
	}
	return nil
}

// Build produces the source and wheel distributions.
func (p *Packager) Build(ctx context.Context, e *env.Environment) error {
	if e == nil {
		return fmt.Errorf("release: environment is required")
	}
	cmd := invoker.Command{
		Tool: e.Python(),
		Args: []string{"-m", "build", "--sdist", "--wheel", "--outdir", p.opts.DistDir},
		Dir:  p.opts.ProjectDir,
	}
	if err := p.invoker.Run(ctx, cmd); err != nil {
		return fmt.Errorf("release: build: %w", err)
	}
	return nil
}

// Artifacts lists the files in the dist directory matching the artifact
// pattern, sorted.
func (p *Packager) Artifacts() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(p.opts.DistDir), p.opts.DistPattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("release: list artifacts: %w", err)
	}
	sort.Strings(matches)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Join(p.opts.DistDir, filepath.FromSlash(m))
	}
	return out, nil
}

// Upload publishes every artifact. Failures are returned verbatim.
func (p *Packager) Upload(ctx context.Context, e *env.Environment) error {
	if e == nil {
		return fmt.Errorf("release: environment is required")
	}
	files, err := p.Artifacts()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		if !p.opts.DryRun {
			return fmt.Errorf("release: %s: %w", p.opts.DistDir, ErrNoArtifacts)
		}
		files = []string{filepath.Join(p.opts.DistDir, p.opts.DistPattern)}
	}
	args := []string{"-m", "twine", "upload", "--non-interactive"}
	if p.opts.Repository != "" {
		args = append(args, "--repository", p.opts.Repository)
	}
	args = append(args, files...)
	p.logger.Info("uploading artifacts", zap.Strings("files", files))
	if err := p.invoker.Run(ctx, invoker.Command{Tool: e.Python(), Args: args, Dir: p.opts.ProjectDir}); err != nil {
		return fmt.Errorf("release: upload: %w", err)
	}
	return nil
}

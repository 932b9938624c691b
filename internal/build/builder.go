// Package build implements the stages of the theme asset pipeline: family
// compilation, variant merging, script minification, static asset copies
// and output cleaning.
//
// Every stage reads and writes through an afero.Fs rooted at the project
// directory, so all paths handled here are project-relative.
package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/logging"
	"github.com/websites-starter/wsbuild/internal/registry"
	"github.com/websites-starter/wsbuild/internal/tasks"
)

// Builder runs pipeline stages for one project.
type Builder struct {
	cfg       *config.Config
	opts      config.BuildOptions
	root      string
	fs        afero.Fs
	logger    logging.Logger
	runner    Runner
	families  []registry.Family
	sources   map[registry.Family]string
	compilers *Compilers
}

// Option customises a Builder.
type Option func(*Builder)

// WithRunner replaces the process runner used by the family compilers.
func WithRunner(runner Runner) Option {
	return func(b *Builder) {
		b.runner = runner
	}
}

// WithFs replaces the project filesystem. fs must be rooted at the project.
func WithFs(fs afero.Fs) Option {
	return func(b *Builder) {
		b.fs = fs
	}
}

// NewBuilder creates a Builder for cfg. Unless WithFs is given, files are
// read and written below cfg.Root on the OS filesystem.
func NewBuilder(cfg *config.Config, logger logging.Logger, opts ...Option) (*Builder, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	families, err := registry.ParseFamilies(cfg.Styles.Families)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		cfg:      cfg,
		opts:     cfg.Options,
		root:     root,
		logger:   logger.WithComponent("build"),
		families: families,
		sources:  make(map[registry.Family]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.fs == nil {
		b.fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}
	if b.runner == nil {
		b.runner = NewExecRunner(nil)
	}

	env := compileEnv{
		fs:         b.fs,
		root:       root,
		scratch:    cfg.Paths.Scratch,
		sourceMaps: b.opts.SourceMaps(),
		runner:     b.runner,
	}

	var compilers []Compiler
	for _, family := range registry.SupportedFamilies() {
		dir := cfg.Styles.Sources[family.String()]
		b.sources[family] = dir

		command, ok := cfg.Styles.Compilers[family.String()]
		if !ok || command.Command == "" {
			continue
		}
		compiler, err := newCompiler(env, family, dir, command)
		if err != nil {
			return nil, err
		}
		compilers = append(compilers, compiler)
	}
	b.compilers = NewCompilers(compilers...)

	return b, nil
}

// Fs returns the project filesystem.
func (b *Builder) Fs() afero.Fs {
	return b.fs
}

// Root returns the absolute project root.
func (b *Builder) Root() string {
	return b.root
}

// NewRegistry returns a fresh variant registry for one styles run.
func (b *Builder) NewRegistry() *registry.VariantRegistry {
	return registry.NewVariantRegistry(b.fs, b.sources, b.logger, b.opts.Verbosity)
}

// Register binds every stage this builder implements to r.
func (b *Builder) Register(r *tasks.Runner) {
	r.Register(tasks.StageCleanAll, b.CleanAll)
	r.Register(tasks.StageCleanStyles, b.CleanStyles)
	r.Register(tasks.StageCleanJavaScript, b.CleanJavaScript)
	r.Register(tasks.StageFonts, b.CopyFonts)
	r.Register(tasks.StageImages, b.CopyImages)
	r.Register(tasks.StageStyles, b.Styles)
	r.Register(tasks.StageJavaScript, func(ctx context.Context) error {
		_, err := b.JavaScript(ctx)
		return err
	})
	r.Register(tasks.StageJavaScriptLibraries, func(ctx context.Context) error {
		_, err := b.JavaScriptLibraries(ctx)
		return err
	})
}

func (b *Builder) stageDone(ctx context.Context, msg string, fields ...interface{}) {
	if b.opts.Verbosity.Enabled(config.VerbosityStages) {
		b.logger.Info(ctx, msg, fields...)
	}
}

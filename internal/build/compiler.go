package build

import (
	"context"
	"fmt"
	"path"

	"github.com/spf13/afero"
	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
	"github.com/websites-starter/wsbuild/internal/registry"
)

// Artifact is the intermediate stylesheet one family produced for one variant.
// Paths are relative to the project root.
type Artifact struct {
	Family  registry.Family
	Variant string
	Path    string
	MapPath string
}

// ArtifactPath returns <scratch>/<family>/<variant>/<variant>-<family>.css.
func ArtifactPath(scratch string, family registry.Family, variant string) string {
	return path.Join(scratch, family.String(), variant, variant+"-"+family.String()+".css")
}

// Compiler turns one variant source of a single family into an Artifact.
// A nil Artifact with a nil error means the variant has no source file.
type Compiler interface {
	Family() registry.Family
	Compile(ctx context.Context, variant string) (*Artifact, error)
}

// compileEnv is what every family adapter shares.
type compileEnv struct {
	fs         afero.Fs
	root       string
	scratch    string
	sourceMaps bool
	runner     Runner
}

type baseCompiler struct {
	env     compileEnv
	family  registry.Family
	dir     string
	ext     string
	command config.CompilerConfig
}

func (c *baseCompiler) Family() registry.Family {
	return c.family
}

// prepare resolves the source and output paths of variant and creates the
// output directory. ok is false when the source file does not exist.
func (c *baseCompiler) prepare(variant string) (src, out string, ok bool, err error) {
	src = path.Join(c.dir, variant+c.ext)

	exists, err := afero.Exists(c.env.fs, src)
	if err != nil {
		return src, "", false, errors.NewIOError(errors.ErrCodeCompileFailed, "cannot stat source", err).WithPath(src)
	}
	if !exists {
		return src, "", false, nil
	}

	out = ArtifactPath(c.env.scratch, c.family, variant)
	if err := c.env.fs.MkdirAll(path.Dir(out), 0o755); err != nil {
		return src, out, false, errors.NewIOError(errors.ErrCodeCompileFailed, "cannot create scratch directory", err).WithPath(path.Dir(out))
	}

	return src, out, true, nil
}

// run invokes command from the project root with the configured extra
// arguments placed first.
func (c *baseCompiler) run(ctx context.Context, variant, command string, args ...string) error {
	all := make([]string, 0, len(c.command.Args)+len(args))
	if command == c.command.Command {
		all = append(all, c.command.Args...)
	}
	all = append(all, args...)

	output, err := c.env.runner.Run(ctx, c.env.root, command, all...)
	if err != nil {
		return errors.ErrCompileFailed(c.family.String(), variant, err).WithOutput(output)
	}
	return nil
}

func (c *baseCompiler) artifact(variant, out string) *Artifact {
	artifact := &Artifact{Family: c.family, Variant: variant, Path: out}
	if c.env.sourceMaps {
		if ok, _ := afero.Exists(c.env.fs, out+".map"); ok {
			artifact.MapPath = out + ".map"
		}
	}
	return artifact
}

// SassCompiler compiles dev/sass/<variant>.scss with Dart Sass and then runs
// the configured prefixer over the result.
type SassCompiler struct {
	baseCompiler
}

func (c *SassCompiler) Compile(ctx context.Context, variant string) (*Artifact, error) {
	src, out, ok, err := c.prepare(variant)
	if err != nil || !ok {
		return nil, err
	}

	mapFlag := "--no-source-map"
	if c.env.sourceMaps {
		mapFlag = "--source-map"
	}
	if err := c.run(ctx, variant, c.command.Command, mapFlag, src, out); err != nil {
		return nil, err
	}

	if c.command.Prefixer != "" {
		prefixMap := "--no-map"
		if c.env.sourceMaps {
			prefixMap = "--map"
		}
		if err := c.run(ctx, variant, c.command.Prefixer, out, "--use", "autoprefixer", "--replace", prefixMap); err != nil {
			return nil, err
		}
	}

	return c.artifact(variant, out), nil
}

// LessCompiler compiles dev/less/<variant>.less with lessc, prefixing
// through the autoprefix plugin when browsers are configured.
type LessCompiler struct {
	baseCompiler
}

func (c *LessCompiler) Compile(ctx context.Context, variant string) (*Artifact, error) {
	src, out, ok, err := c.prepare(variant)
	if err != nil || !ok {
		return nil, err
	}

	var args []string
	if c.env.sourceMaps {
		args = append(args, "--source-map")
	}
	if c.command.Browsers != "" {
		args = append(args, "--autoprefix="+c.command.Browsers)
	}
	args = append(args, src, out)

	if err := c.run(ctx, variant, c.command.Command, args...); err != nil {
		return nil, err
	}

	return c.artifact(variant, out), nil
}

// StylusCompiler compiles dev/stylus/<variant>.styl.
type StylusCompiler struct {
	baseCompiler
}

func (c *StylusCompiler) Compile(ctx context.Context, variant string) (*Artifact, error) {
	src, out, ok, err := c.prepare(variant)
	if err != nil || !ok {
		return nil, err
	}

	var args []string
	if c.env.sourceMaps {
		args = append(args, "--sourcemap")
	}
	args = append(args, "--out", out, src)

	if err := c.run(ctx, variant, c.command.Command, args...); err != nil {
		return nil, err
	}

	return c.artifact(variant, out), nil
}

var familyExtensions = map[registry.Family]string{
	registry.FamilySASS:   ".scss",
	registry.FamilyLESS:   ".less",
	registry.FamilyStylus: ".styl",
}

// newCompiler builds the adapter for family.
func newCompiler(env compileEnv, family registry.Family, dir string, command config.CompilerConfig) (Compiler, error) {
	base := baseCompiler{
		env:     env,
		family:  family,
		dir:     dir,
		ext:     familyExtensions[family],
		command: command,
	}

	switch family {
	case registry.FamilySASS:
		return &SassCompiler{base}, nil
	case registry.FamilyLESS:
		return &LessCompiler{base}, nil
	case registry.FamilyStylus:
		return &StylusCompiler{base}, nil
	default:
		return nil, errors.ErrUnsupportedFamily(family.String())
	}
}

// Compilers is the set of family adapters available to a build.
type Compilers struct {
	byFamily map[registry.Family]Compiler
}

// NewCompilers indexes compilers by family. Later entries replace earlier ones.
func NewCompilers(compilers ...Compiler) *Compilers {
	c := &Compilers{byFamily: make(map[registry.Family]Compiler, len(compilers))}
	for _, compiler := range compilers {
		c.byFamily[compiler.Family()] = compiler
	}
	return c
}

// For returns the adapter for family.
func (c *Compilers) For(family registry.Family) (Compiler, bool) {
	compiler, ok := c.byFamily[family]
	return compiler, ok
}

// CompileVariant compiles one variant of one family into the scratch tree.
// A missing family or variant, or a family without an adapter, is a
// configuration problem: it is logged at --log1 and the call does nothing.
func (b *Builder) CompileVariant(ctx context.Context, family registry.Family, variant string) (*Artifact, error) {
	if family == "" || variant == "" {
		if b.opts.Verbosity.Enabled(config.VerbosityStages) {
			b.logger.Error(ctx, errors.ErrMissingVariant(family.String(), variant), "Compile skipped")
		}
		return nil, nil
	}

	compiler, ok := b.compilers.For(family)
	if !ok {
		if b.opts.Verbosity.Enabled(config.VerbosityStages) {
			b.logger.Error(ctx, errors.ErrUnsupportedFamily(family.String()), "Compile skipped")
		}
		return nil, nil
	}

	op := logging.StartOperation(b.logger, fmt.Sprintf("compile %s/%s", family, variant))
	artifact, err := compiler.Compile(ctx, variant)
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}
	op.End(ctx)

	if b.opts.Verbosity.Enabled(config.VerbosityDetail) {
		if artifact != nil {
			b.logger.Info(ctx, "Finished - "+family.DisplayName()+" - "+variant, "output", artifact.Path)
		} else {
			b.logger.Debug(ctx, "No source file for variant", "family", family.String(), "variant", variant)
		}
	}

	return artifact, nil
}

package build

import (
	"context"

	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/errors"
)

// CleanAll removes the whole output tree. It does nothing with --save.
func (b *Builder) CleanAll(ctx context.Context) error {
	return b.clean(ctx, "all", b.cfg.Paths.Output)
}

// CleanStyles removes the scratch tree and the final stylesheets.
func (b *Builder) CleanStyles(ctx context.Context) error {
	return b.clean(ctx, "styles", b.cfg.Paths.Scratch, b.cfg.Paths.CSSOutput)
}

// CleanJavaScript removes the script output directory.
func (b *Builder) CleanJavaScript(ctx context.Context) error {
	return b.clean(ctx, "javascript", b.cfg.Paths.JSOutput)
}

// CleanIntermediates removes the per-family scratch artifacts.
func (b *Builder) CleanIntermediates(ctx context.Context) error {
	return b.clean(ctx, "intermediates", b.cfg.Paths.Scratch)
}

func (b *Builder) clean(ctx context.Context, name string, targets ...string) error {
	if !b.opts.CleanEnabled() {
		if b.opts.Verbosity.Enabled(config.VerbosityDetail) {
			b.logger.Debug(ctx, "Clean skipped, outputs retained", "clean", name)
		}
		return nil
	}

	for _, target := range targets {
		if err := b.fs.RemoveAll(target); err != nil {
			return errors.NewIOError(errors.ErrCodeCleanFailed, "cannot remove output", err).WithPath(target)
		}
	}

	b.stageDone(ctx, "Finished - clean "+name, "removed", targets)
	return nil
}

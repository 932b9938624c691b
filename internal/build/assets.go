package build

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/errors"
)

// CopyFonts mirrors the fonts source tree into the fonts output directory.
func (b *Builder) CopyFonts(ctx context.Context) error {
	n, err := b.copyTree(ctx, b.cfg.Paths.FontsSource, b.cfg.Paths.FontsOutput)
	if err != nil {
		return err
	}
	b.stageDone(ctx, "Finished - fonts", "files", n)
	return nil
}

// CopyImages mirrors the images source tree into the images output directory.
func (b *Builder) CopyImages(ctx context.Context) error {
	n, err := b.copyTree(ctx, b.cfg.Paths.ImagesSource, b.cfg.Paths.ImagesOutput)
	if err != nil {
		return err
	}
	b.stageDone(ctx, "Finished - images", "files", n)
	return nil
}

// copyTree copies every regular file below src to the same relative path
// below dst. A missing src copies nothing.
func (b *Builder) copyTree(ctx context.Context, src, dst string) (int, error) {
	if ok, err := afero.DirExists(b.fs, src); err != nil || !ok {
		if err != nil {
			return 0, errors.NewIOError(errors.ErrCodeCopyFailed, "cannot stat source tree", err).WithPath(src)
		}
		return 0, nil
	}

	copied := 0
	err := afero.Walk(b.fs, src, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, name)
		if err != nil {
			return err
		}
		dest := path.Join(dst, filepath.ToSlash(rel))
		if err := copyFile(b.fs, name, dest); err != nil {
			return err
		}
		copied++

		if b.opts.Verbosity.Enabled(config.VerbosityDetail) {
			b.logger.Debug(ctx, "Copied asset", "source", name, "output", dest)
		}
		return nil
	})
	if err != nil {
		return copied, errors.NewIOError(errors.ErrCodeCopyFailed, "cannot copy "+src, err).WithPath(src)
	}

	return copied, nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

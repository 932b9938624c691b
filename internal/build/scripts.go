package build

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/errors"
)

// ScriptBundle lists the files written by the script pipeline.
type ScriptBundle struct {
	Minified  []string
	Maps      []string
	Libraries []string
}

var jsTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// scriptTarget is the configured target in strict mode and ESNext with --nostrict.
func (b *Builder) scriptTarget() api.Target {
	if !b.opts.StrictJS {
		return api.ESNext
	}
	if target, ok := jsTargets[strings.ToLower(b.cfg.Scripts.Target)]; ok {
		return target
	}
	return api.ES2015
}

// scriptSources returns the first-party scripts to minify.
func (b *Builder) scriptSources() ([]string, error) {
	return globFiles(b.fs, b.cfg.Scripts.Sources, b.cfg.Scripts.Exclude)
}

// MinifiedPath maps a first-party script to <js_output>/<name>.min.js.
func (b *Builder) MinifiedPath(src string) string {
	name := strings.TrimSuffix(path.Base(src), path.Ext(src))
	return path.Join(b.cfg.Paths.JSOutput, name+".min.js")
}

// JavaScript minifies every first-party script into the JS output directory.
// Production builds drop console and debugger statements and skip source maps.
func (b *Builder) JavaScript(ctx context.Context) (*ScriptBundle, error) {
	sources, err := b.scriptSources()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeScriptFailed, "cannot list scripts", err)
	}

	bundle := &ScriptBundle{}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, mapPath, err := b.minifyScript(src)
		if err != nil {
			return nil, err
		}
		bundle.Minified = append(bundle.Minified, out)
		if mapPath != "" {
			bundle.Maps = append(bundle.Maps, mapPath)
		}
		if b.opts.Verbosity.Enabled(config.VerbosityDetail) {
			b.logger.Info(ctx, "Minified script", "source", src, "output", out)
		}
	}

	b.stageDone(ctx, "Finished - JavaScript", "files", len(bundle.Minified))
	return bundle, nil
}

func (b *Builder) minifyScript(src string) (string, string, error) {
	code, err := afero.ReadFile(b.fs, src)
	if err != nil {
		return "", "", errors.NewIOError(errors.ErrCodeScriptFailed, "cannot read script", err).WithPath(src)
	}

	out := b.MinifiedPath(src)
	options := api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        mapSource(path.Dir(out), src),
		Target:            b.scriptTarget(),
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
	}
	if b.opts.Production {
		options.Drop = api.DropConsole | api.DropDebugger
		options.LegalComments = api.LegalCommentsNone
	} else {
		options.Sourcemap = api.SourceMapExternal
		options.LegalComments = api.LegalCommentsInline
	}

	result := api.Transform(string(code), options)
	if len(result.Errors) > 0 {
		return "", "", errors.NewBuildError(errors.ErrCodeScriptFailed, "cannot minify script", messagesError(result.Errors)).WithPath(src)
	}

	if err := b.fs.MkdirAll(path.Dir(out), 0o755); err != nil {
		return "", "", errors.NewIOError(errors.ErrCodeScriptFailed, "cannot create output directory", err).WithPath(path.Dir(out))
	}

	minified := result.Code
	mapPath := ""
	if len(result.Map) > 0 {
		mapPath = out + ".map"
		minified = append(minified, []byte("//# sourceMappingURL="+path.Base(mapPath)+"\n")...)
		if err := afero.WriteFile(b.fs, mapPath, result.Map, 0o644); err != nil {
			return "", "", errors.NewIOError(errors.ErrCodeScriptFailed, "cannot write source map", err).WithPath(mapPath)
		}
	}

	if err := afero.WriteFile(b.fs, out, minified, 0o644); err != nil {
		return "", "", errors.NewIOError(errors.ErrCodeScriptFailed, "cannot write script", err).WithPath(out)
	}

	return out, mapPath, nil
}

// mapSource names src the way a map written to dir must list it.
func mapSource(dir, src string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(src))
	if err != nil {
		return src
	}
	return filepath.ToSlash(rel)
}

// JavaScriptLibraries copies library files verbatim into the JS output
// directory, keeping their path below the library glob's base. A library
// that would overwrite a minified first-party script, or its source map when
// maps are written, fails the stage.
func (b *Builder) JavaScriptLibraries(ctx context.Context) (*ScriptBundle, error) {
	sources, err := b.scriptSources()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeScriptFailed, "cannot list scripts", err)
	}
	reserved := make(map[string]bool, 2*len(sources))
	for _, src := range sources {
		out := b.MinifiedPath(src)
		reserved[out] = true
		if b.opts.SourceMaps() {
			reserved[out+".map"] = true
		}
	}

	bundle := &ScriptBundle{}
	for _, pattern := range b.cfg.Scripts.Libraries {
		base, _ := doublestar.SplitPattern(cleanPattern(pattern))

		files, err := globFiles(b.fs, []string{pattern}, b.cfg.Scripts.LibrariesExclude)
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeCopyFailed, "cannot list libraries", err)
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			dest := path.Join(b.cfg.Paths.JSOutput, relativeTo(base, file))
			if reserved[dest] {
				return nil, errors.ErrOutputCollision(dest)
			}
			if err := copyFile(b.fs, file, dest); err != nil {
				return nil, errors.NewIOError(errors.ErrCodeCopyFailed, "cannot copy library", err).WithPath(file)
			}
			bundle.Libraries = append(bundle.Libraries, dest)
		}
	}

	b.stageDone(ctx, "Finished - JavaScript libraries", "files", len(bundle.Libraries))
	return bundle, nil
}

// CompileScripts runs the minify stage followed by the library copy.
func (b *Builder) CompileScripts(ctx context.Context) (*ScriptBundle, error) {
	bundle, err := b.JavaScript(ctx)
	if err != nil {
		return nil, err
	}
	libs, err := b.JavaScriptLibraries(ctx)
	if err != nil {
		return nil, err
	}
	bundle.Libraries = libs.Libraries
	return bundle, nil
}

func relativeTo(base, name string) string {
	if base == "." || base == "" {
		return name
	}
	return strings.TrimPrefix(name, base+"/")
}

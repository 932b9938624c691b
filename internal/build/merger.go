package build

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
	"github.com/websites-starter/wsbuild/internal/registry"
)

const projectNamespace = "wsbuild"

// Stylesheet is a final merged variant stylesheet.
type Stylesheet struct {
	Variant string
	Path    string
	MapPath string
	// Sources lists the inputs in concatenation order.
	Sources []string
}

// MergeVariant concatenates the shared base CSS with every family artifact
// that exists for variant, in Stylus, LESS, SASS order, and writes the
// minified result to <css_output>/<variant>.css. Missing artifacts are
// skipped. With no inputs at all nothing is written and nil is returned.
func (b *Builder) MergeVariant(ctx context.Context, variant string) (*Stylesheet, error) {
	sources, err := b.mergeSources(variant)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		if b.opts.Verbosity.Enabled(config.VerbosityDetail) {
			b.logger.Debug(ctx, "Nothing to merge", "variant", variant)
		}
		return nil, nil
	}

	op := logging.StartOperation(b.logger, "merge "+variant)

	sheet, err := b.bundleCSS(variant, sources)
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}
	op.End(ctx)

	if b.opts.Verbosity.Enabled(config.VerbosityDetail) {
		b.logger.Info(ctx, "Finished - concatenating "+variant, "output", sheet.Path, "sources", len(sources))
	}

	return sheet, nil
}

// mergeSources returns the base CSS files followed by the variant's
// existing artifacts in merge precedence.
func (b *Builder) mergeSources(variant string) ([]string, error) {
	base, err := globFiles(b.fs, b.cfg.Paths.BaseCSS, nil)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeMergeFailed, "cannot list base stylesheets", err)
	}

	sources := base
	for _, family := range registry.MergePrecedence {
		artifact := ArtifactPath(b.cfg.Paths.Scratch, family, variant)
		exists, err := afero.Exists(b.fs, artifact)
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeMergeFailed, "cannot stat artifact", err).WithPath(artifact)
		}
		if exists {
			sources = append(sources, artifact)
		}
	}

	return sources, nil
}

func (b *Builder) bundleCSS(variant string, sources []string) (*Stylesheet, error) {
	var entry strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&entry, "@import %q;\n", projectNamespace+":"+src)
	}

	outPath := path.Join(b.cfg.Paths.CSSOutput, variant+".css")

	options := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   entry.String(),
			Sourcefile: variant + ".css",
			Loader:     api.LoaderCSS,
		},
		Bundle:           true,
		Write:            false,
		AbsWorkingDir:    b.root,
		Outfile:          filepath.Join(b.root, filepath.FromSlash(outPath)),
		MinifyWhitespace: true,
		LogLevel:         api.LogLevelSilent,
		Plugins:          []api.Plugin{projectPlugin(b.fs, b.root, b.opts.SourceMaps())},
	}
	if b.opts.Production {
		options.MinifySyntax = true
		options.LegalComments = api.LegalCommentsNone
		options.Sourcemap = api.SourceMapNone
	} else {
		options.LegalComments = api.LegalCommentsInline
		options.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(options)
	if len(result.Errors) > 0 {
		return nil, errors.NewBuildError(errors.ErrCodeMergeFailed, "cannot merge "+variant, messagesError(result.Errors)).
			WithVariant("", variant).
			WithPath(outPath)
	}

	if err := b.fs.MkdirAll(b.cfg.Paths.CSSOutput, 0o755); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeMergeFailed, "cannot create output directory", err).WithPath(b.cfg.Paths.CSSOutput)
	}

	sheet := &Stylesheet{Variant: variant, Path: outPath, Sources: sources}
	for _, file := range result.OutputFiles {
		target := outPath
		if strings.HasSuffix(file.Path, ".map") {
			target = outPath + ".map"
			sheet.MapPath = target
		}
		if err := afero.WriteFile(b.fs, target, file.Contents, 0o644); err != nil {
			return nil, errors.NewIOError(errors.ErrCodeMergeFailed, "cannot write stylesheet", err).WithPath(target)
		}
	}

	return sheet, nil
}

// projectPlugin resolves and loads @import targets from the project fs.
// Inputs live in the file namespace under their absolute path below root so
// that the merged source map lists them relative to the output directory.
// url() references and remote imports are left untouched. With maps on, an
// input's own linked map is inlined so esbuild chains it back to the
// preprocessor sources.
func projectPlugin(fs afero.Fs, root string, maps bool) api.Plugin {
	return api.Plugin{
		Name: "project-fs",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + projectNamespace + ":"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					rel := strings.TrimPrefix(args.Path, projectNamespace+":")
					return api.OnResolveResult{
						Path:      filepath.Join(root, filepath.FromSlash(rel)),
						Namespace: "file",
					}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveCSSURLToken || isExternalRef(args.Path) {
						return api.OnResolveResult{Path: args.Path, External: true}, nil
					}
					return api.OnResolveResult{
						Path:      filepath.Join(filepath.Dir(args.Importer), filepath.FromSlash(args.Path)),
						Namespace: "file",
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					rel, err := filepath.Rel(root, args.Path)
					if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
						return api.OnLoadResult{}, fmt.Errorf("%s is outside the project", args.Path)
					}
					name := filepath.ToSlash(rel)

					data, err := afero.ReadFile(fs, name)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					if maps {
						data = inlineSourceMap(fs, name, data)
					}

					contents := string(data)
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     api.LoaderCSS,
						ResolveDir: filepath.Dir(args.Path),
					}, nil
				})
		},
	}
}

var sourceMapComment = regexp.MustCompile(`/\*# sourceMappingURL=([^\s*]+)\s*\*/`)

// inlineSourceMap replaces the last sourceMappingURL comment of css, when
// it names a map file next to name, with a data URL holding that map. A
// comment whose map cannot be read is dropped.
func inlineSourceMap(fs afero.Fs, name string, css []byte) []byte {
	matches := sourceMapComment.FindAllSubmatchIndex(css, -1)
	if len(matches) == 0 {
		return css
	}
	m := matches[len(matches)-1]

	ref := string(css[m[2]:m[3]])
	if strings.HasPrefix(ref, "data:") || strings.Contains(ref, "://") {
		return css
	}

	out := make([]byte, 0, len(css))
	out = append(out, css[:m[0]]...)
	if data, err := afero.ReadFile(fs, path.Join(path.Dir(name), ref)); err == nil {
		out = append(out, "/*# sourceMappingURL=data:application/json;base64,"...)
		out = append(out, base64.StdEncoding.EncodeToString(data)...)
		out = append(out, " */"...)
	}
	return append(out, css[m[1]:]...)
}

func isExternalRef(ref string) bool {
	for _, prefix := range []string{"http://", "https://", "//", "data:", "/"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

func messagesError(messages []api.Message) error {
	formatted := api.FormatMessages(messages, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return fmt.Errorf("%s", strings.TrimSpace(strings.Join(formatted, "")))
}

// globFiles expands project-relative doublestar patterns into a sorted list
// of regular files, dropping anything matched by an exclude pattern.
func globFiles(fs afero.Fs, patterns, exclude []string) ([]string, error) {
	fsys := afero.NewIOFS(fs)
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, cleanPattern(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] || excluded(match, exclude) {
				continue
			}
			seen[match] = true
			files = append(files, match)
		}
	}

	sort.Strings(files)
	return files, nil
}

func excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(cleanPattern(pattern), name); ok {
			return true
		}
	}
	return false
}

func cleanPattern(pattern string) string {
	return strings.TrimPrefix(filepath.ToSlash(pattern), "./")
}

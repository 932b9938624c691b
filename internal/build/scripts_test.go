package build

import (
	"context"
	"encoding/json"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websites-starter/wsbuild/internal/config"
	pipelineerrors "github.com/websites-starter/wsbuild/internal/errors"
)

const appScript = `function greet(name) {
  console.log("hello", name);
  debugger;
  return "hi " + name;
}
window.greet = greet;
`

func seedScripts(t *testing.T, p *testProject) {
	t.Helper()
	p.write(t, "dev/js/app.js", appScript)
	p.write(t, "dev/js/menu.js", "export const open = () => document.body.classList.add('open');\n")
	p.write(t, "dev/js/vendor.min.js", "var v=1;")
	p.write(t, "dev/js/lib/jquery.js", "/* jquery */ var $ = 1;")
	p.write(t, "dev/js/lib/plugins/slider.min.js", "var s=1;")
}

func TestJavaScriptProduction(t *testing.T) {
	p := newTestProject(t, production)
	seedScripts(t, p)

	bundle, err := p.builder.JavaScript(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/js/app.min.js", "assets/js/menu.min.js"}, bundle.Minified)
	assert.Empty(t, bundle.Maps)

	app := p.read(t, "assets/js/app.min.js")
	assert.NotContains(t, app, "console")
	assert.NotContains(t, app, "debugger")
	assert.NotContains(t, app, "sourceMappingURL")
	assert.Contains(t, app, "window.greet")

	assert.False(t, p.exists(t, "assets/js/vendor.min.min.js"))
}

func TestJavaScriptDevelopment(t *testing.T) {
	p := newTestProject(t, nil)
	seedScripts(t, p)

	bundle, err := p.builder.JavaScript(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/js/app.min.js.map", "assets/js/menu.min.js.map"}, bundle.Maps)

	app := p.read(t, "assets/js/app.min.js")
	assert.Contains(t, app, "console.log")
	assert.Contains(t, app, "//# sourceMappingURL=app.min.js.map")

	var sourceMap struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(p.read(t, "assets/js/app.min.js.map")), &sourceMap))
	assert.Equal(t, []string{"../../dev/js/app.js"}, sourceMap.Sources)
	assert.Equal(t, "dev/js/app.js", path.Join("assets/js", sourceMap.Sources[0]), "relative to the map file")
}

func TestJavaScriptTarget(t *testing.T) {
	source := "export const pick = (a) => a ?? 1;\n"

	tests := []struct {
		name     string
		noStrict bool
		keeps    bool
	}{
		{"strict lowers to es2015", false, false},
		{"nostrict keeps modern syntax", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProject(t, func(cfg *config.Config) {
				production(cfg)
				cfg.Options.StrictJS = !tt.noStrict
			})
			p.write(t, "dev/js/pick.js", source)

			_, err := p.builder.JavaScript(context.Background())
			require.NoError(t, err)

			out := p.read(t, "assets/js/pick.min.js")
			if tt.keeps {
				assert.Contains(t, out, "??")
			} else {
				assert.NotContains(t, out, "??")
			}
		})
	}
}

func TestJavaScriptSyntaxError(t *testing.T) {
	p := newTestProject(t, production)
	p.write(t, "dev/js/broken.js", "function (")

	_, err := p.builder.JavaScript(context.Background())
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsBuildError(err))
	assert.Contains(t, err.Error(), "dev/js/broken.js")
}

func TestJavaScriptLibraries(t *testing.T) {
	p := newTestProject(t, production)
	seedScripts(t, p)

	bundle, err := p.builder.JavaScriptLibraries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"assets/js/lib/jquery.js", "assets/js/lib/plugins/slider.min.js"}, bundle.Libraries)
	assert.Equal(t, "/* jquery */ var $ = 1;", p.read(t, "assets/js/lib/jquery.js"))
	assert.False(t, p.exists(t, "assets/js/app.js"), "first-party scripts are not copied")
}

func TestJavaScriptLibraryCollision(t *testing.T) {
	p := newTestProject(t, func(cfg *config.Config) {
		production(cfg)
		cfg.Scripts.Libraries = []string{"dev/vendor/*"}
		cfg.Scripts.LibrariesExclude = nil
	})
	p.write(t, "dev/js/app.js", appScript)
	p.write(t, "dev/vendor/app.min.js", "var clash=1;")

	_, err := p.builder.CompileScripts(context.Background())
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsIOError(err))
	assert.Contains(t, err.Error(), "assets/js/app.min.js")
}

func TestJavaScriptLibraryMapCollision(t *testing.T) {
	p := newTestProject(t, nil)
	p.write(t, "dev/js/app.js", appScript)
	p.write(t, "dev/js/app.min.js.map", `{"version":3}`)

	_, err := p.builder.CompileScripts(context.Background())
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsIOError(err))
	assert.Contains(t, err.Error(), "assets/js/app.min.js.map")
	assert.NotEqual(t, `{"version":3}`, p.read(t, "assets/js/app.min.js.map"))
}

func TestJavaScriptLibraryMapWithoutMaps(t *testing.T) {
	p := newTestProject(t, production)
	p.write(t, "dev/js/app.js", appScript)
	p.write(t, "dev/js/app.min.js.map", `{"version":3}`)

	bundle, err := p.builder.CompileScripts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/js/app.min.js.map"}, bundle.Libraries)
}

func TestCompileScripts(t *testing.T) {
	p := newTestProject(t, production)
	seedScripts(t, p)

	bundle, err := p.builder.CompileScripts(context.Background())
	require.NoError(t, err)
	assert.Len(t, bundle.Minified, 2)
	assert.Len(t, bundle.Libraries, 2)
}

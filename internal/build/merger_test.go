package build

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/registry"
)

func writeArtifact(t *testing.T, p *testProject, family registry.Family, variant, css string) {
	t.Helper()
	p.write(t, ArtifactPath(p.cfg.Paths.Scratch, family, variant), css)
}

func assertOrder(t *testing.T, css string, markers ...string) {
	t.Helper()
	last := -1
	for _, marker := range markers {
		idx := strings.Index(css, marker)
		require.GreaterOrEqual(t, idx, 0, "missing %s in %s", marker, css)
		assert.Greater(t, idx, last, "%s out of order in %s", marker, css)
		last = idx
	}
}

func TestMergeVariantPrecedence(t *testing.T) {
	p := newTestProject(t, production)
	p.write(t, "dev/css/base.css", ".base-rule{margin:0}")
	writeArtifact(t, p, registry.FamilySASS, "default", ".sass-rule{color:red}")
	writeArtifact(t, p, registry.FamilyLESS, "default", ".less-rule{color:green}")
	writeArtifact(t, p, registry.FamilyStylus, "default", ".stylus-rule{color:blue}")

	sheet, err := p.builder.MergeVariant(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, sheet)

	assert.Equal(t, "assets/css/default.css", sheet.Path)
	assert.Empty(t, sheet.MapPath)
	assert.Equal(t, []string{
		"dev/css/base.css",
		"assets/styles/stylus/default/default-stylus.css",
		"assets/styles/less/default/default-less.css",
		"assets/styles/sass/default/default-sass.css",
	}, sheet.Sources)

	css := p.read(t, sheet.Path)
	assertOrder(t, css, ".base-rule", ".stylus-rule", ".less-rule", ".sass-rule")
	assert.NotContains(t, css, "\n\n")
	assert.NotContains(t, css, "sourceMappingURL")
}

func TestMergeVariantToleratesMissingArtifacts(t *testing.T) {
	p := newTestProject(t, production)
	writeArtifact(t, p, registry.FamilySASS, "dark", ".sass-rule{color:red}")

	sheet, err := p.builder.MergeVariant(context.Background(), "dark")
	require.NoError(t, err)
	require.NotNil(t, sheet)

	assert.Equal(t, []string{"assets/styles/sass/dark/dark-sass.css"}, sheet.Sources)
	assert.Contains(t, p.read(t, "assets/css/dark.css"), ".sass-rule")
}

func TestMergeVariantWithNothingToMerge(t *testing.T) {
	p := newTestProject(t, nil)

	sheet, err := p.builder.MergeVariant(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, sheet)
	assert.False(t, p.exists(t, "assets/css/ghost.css"))
}

func TestMergeVariantBaseOnly(t *testing.T) {
	p := newTestProject(t, production)
	p.write(t, "dev/css/b.css", ".b{top:0}")
	p.write(t, "dev/css/nested/a.css", ".a{left:0}")

	sheet, err := p.builder.MergeVariant(context.Background(), "plain")
	require.NoError(t, err)
	require.NotNil(t, sheet)
	assert.Equal(t, []string{"dev/css/b.css", "dev/css/nested/a.css"}, sheet.Sources)
}

func TestMergeVariantDevelopmentSourceMap(t *testing.T) {
	p := newTestProject(t, nil)
	p.write(t, "dev/css/base.css", "/*! theme license */\n.base-rule { margin: 0 }")
	writeArtifact(t, p, registry.FamilyLESS, "default", ".less-rule { color: green }")

	sheet, err := p.builder.MergeVariant(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, sheet)

	assert.Equal(t, "assets/css/default.css.map", sheet.MapPath)
	assert.True(t, p.exists(t, sheet.MapPath))

	css := p.read(t, sheet.Path)
	assert.Contains(t, css, "theme license")
	assert.Contains(t, css, "sourceMappingURL=default.css.map")

	sources := mapSources(t, p, sheet.MapPath)
	assert.ElementsMatch(t, []string{
		"../../dev/css/base.css",
		"../styles/less/default/default-less.css",
	}, sources)
}

func mapSources(t *testing.T, p *testProject, name string) []string {
	t.Helper()
	var sourceMap struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(p.read(t, name)), &sourceMap))
	return sourceMap.Sources
}

func TestMergeVariantChainsArtifactMaps(t *testing.T) {
	p := newTestProject(t, nil)
	p.write(t, "dev/css/base.css", ".base-rule { margin: 0 }\n")

	artifact := ArtifactPath(p.cfg.Paths.Scratch, registry.FamilySASS, "default")
	p.write(t, artifact, ".sass-rule {\n  color: red;\n}\n\n/*# sourceMappingURL=default-sass.css.map */\n")
	p.write(t, artifact+".map", `{"version":3,"sources":["../../../../dev/sass/default.scss"],"names":[],"mappings":"AAAA;EACE"}`)

	// A map that cannot be read is ignored rather than failing the merge.
	writeArtifact(t, p, registry.FamilyLESS, "default", ".less-rule { color: green }\n/*# sourceMappingURL=gone.css.map */\n")

	sheet, err := p.builder.MergeVariant(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, sheet)

	sources := mapSources(t, p, sheet.MapPath)
	assert.ElementsMatch(t, []string{
		"../../dev/css/base.css",
		"../styles/less/default/default-less.css",
		"../../dev/sass/default.scss",
	}, sources)

	for _, source := range sources {
		assert.NotContains(t, source, "wsbuild:")
		resolved := path.Join(path.Dir(sheet.MapPath), source)
		assert.False(t, strings.HasPrefix(resolved, ".."), "%s leaves the project", source)
	}

	css := p.read(t, sheet.Path)
	assert.NotContains(t, css, "default-sass.css.map")
	assert.NotContains(t, css, "gone.css.map")
}

func TestMergeVariantKeepsURLReferences(t *testing.T) {
	p := newTestProject(t, production)
	writeArtifact(t, p, registry.FamilySASS, "default", `.hero{background:url("../images/hero.png")}`)

	_, err := p.builder.MergeVariant(context.Background(), "default")
	require.NoError(t, err)
	assert.Contains(t, p.read(t, "assets/css/default.css"), "../images/hero.png")
}

func TestMergeVariantInvalidCSS(t *testing.T) {
	p := newTestProject(t, func(cfg *config.Config) {
		production(cfg)
		cfg.Paths.BaseCSS = []string{"dev/css/*.css"}
	})
	writeArtifact(t, p, registry.FamilySASS, "default", `@import "missing.css";`)

	_, err := p.builder.MergeVariant(context.Background(), "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default")
	assert.False(t, p.exists(t, "assets/css/default.css"))
}

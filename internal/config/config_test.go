package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, []string{"sass", "less", "stylus"}, cfg.Styles.Families)
	assert.Equal(t, "dev/less", cfg.Styles.Sources["less"])
	assert.Equal(t, "sass", cfg.Styles.Compilers["sass"].Command)
	assert.Equal(t, "postcss", cfg.Styles.Compilers["sass"].Prefixer)
	assert.Equal(t, "last 5 versions", cfg.Styles.Compilers["less"].Browsers)
	assert.Equal(t, []string{"dev/css/**/*.css"}, cfg.Paths.BaseCSS)
	assert.Equal(t, "assets/styles", cfg.Paths.Scratch)
	assert.Equal(t, []string{"dev/js/*.js"}, cfg.Scripts.Sources)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)

	opts := cfg.Options
	assert.False(t, opts.Production)
	assert.False(t, opts.RetainIntermediate)
	assert.True(t, opts.StrictJS)
	assert.False(t, opts.LiveReload)
	assert.Equal(t, DefaultProxyTarget, opts.ProxyTarget)
	assert.Equal(t, DefaultPort, opts.Port)
	assert.Equal(t, VerbosityQuiet, opts.Verbosity)
	assert.True(t, opts.CleanEnabled())
	assert.True(t, opts.SourceMaps())
}

func TestLoadBuildOptions(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(v *viper.Viper)
		verify func(t *testing.T, opts BuildOptions)
	}{
		{
			name: "production",
			setup: func(v *viper.Viper) {
				v.Set("build.production", true)
			},
			verify: func(t *testing.T, opts BuildOptions) {
				assert.True(t, opts.Production)
				assert.False(t, opts.SourceMaps())
			},
		},
		{
			name: "save keeps files",
			setup: func(v *viper.Viper) {
				v.Set("build.save", true)
			},
			verify: func(t *testing.T, opts BuildOptions) {
				assert.True(t, opts.RetainIntermediate)
				assert.False(t, opts.CleanEnabled())
			},
		},
		{
			name: "nostrict",
			setup: func(v *viper.Viper) {
				v.Set("build.nostrict", true)
			},
			verify: func(t *testing.T, opts BuildOptions) {
				assert.False(t, opts.StrictJS)
			},
		},
		{
			name: "sync with proxy and port",
			setup: func(v *viper.Viper) {
				v.Set("sync.enabled", true)
				v.Set("sync.proxy", "http://theme.test/")
				v.Set("sync.port", 4000)
			},
			verify: func(t *testing.T, opts BuildOptions) {
				assert.True(t, opts.LiveReload)
				assert.Equal(t, "http://theme.test/", opts.ProxyTarget)
				assert.Equal(t, 4000, opts.Port)
			},
		},
		{
			name: "log2",
			setup: func(v *viper.Viper) {
				v.Set("build.verbosity", 2)
			},
			verify: func(t *testing.T, opts BuildOptions) {
				assert.Equal(t, VerbosityDetail, opts.Verbosity)
				assert.True(t, opts.Verbosity.Enabled(VerbosityStages))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			require.NoError(t, err)
			tt.verify(t, cfg.Options)
		})
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *viper.Viper)
	}{
		{"unknown family", func(v *viper.Viper) { v.Set("styles.families", []string{"scss"}) }},
		{"duplicate family", func(v *viper.Viper) { v.Set("styles.families", []string{"less", "less"}) }},
		{"port out of range", func(v *viper.Viper) { v.Set("sync.port", 70000) }},
		{"bad proxy", func(v *viper.Viper) {
			v.Set("sync.enabled", true)
			v.Set("sync.proxy", "ftp://example.com")
		}},
		{"absolute output", func(v *viper.Viper) { v.Set("paths.output", "/var/www") }},
		{"verbosity", func(v *viper.Viper) { v.Set("build.verbosity", 3) }},
		{"unparsable port", func(v *viper.Viper) { v.Set("sync.port", "many") }},
		{"compiler argument", func(v *viper.Viper) {
			v.Set("styles.compilers.less.args", []string{"--include-path=$(id)"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".wsbuild.yml")
	content := `
styles:
  families: [less, sass]
build:
  production: true
watch:
  debounce: 50ms
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"less", "sass"}, cfg.Styles.Families)
	assert.True(t, cfg.Options.Production)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WSBUILD_TEST_PROXY=http://wp.test/\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("WSBUILD_TEST_PROXY") })

	require.NoError(t, LoadDotEnv(dir))
	assert.Equal(t, "http://wp.test/", os.Getenv("WSBUILD_TEST_PROXY"))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "stylus", cfg.Styles.Compilers["stylus"].Command)
	assert.Equal(t, filepath.Join(".", "assets"), cfg.Abs(cfg.Paths.Output))
}

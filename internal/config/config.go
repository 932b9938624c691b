// Package config provides configuration management for wsbuild using Viper
// for loading from command-line flags, WSBUILD_ environment variables, a
// project .env file and the .wsbuild.yml config file.
//
// Load resolves everything once into a Config whose Options field is the
// immutable BuildOptions value the pipeline reads for the rest of the run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultProxyTarget is used when --sync is given without a value.
const DefaultProxyTarget = "http://localhost/"

// DefaultPort is the live-reload server port.
const DefaultPort = 3000

type Config struct {
	Root    string        `mapstructure:"root" yaml:"root"`
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths"`
	Styles  StylesConfig  `mapstructure:"styles" yaml:"styles"`
	Scripts ScriptsConfig `mapstructure:"scripts" yaml:"scripts"`
	Build   BuildConfig   `mapstructure:"build" yaml:"build"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	// Options is derived from Build and Sync by Load.
	Options BuildOptions `mapstructure:"-" yaml:"-"`
}

// PathsConfig lists source and output trees relative to Root.
type PathsConfig struct {
	Output       string   `mapstructure:"output" yaml:"output"`
	Scratch      string   `mapstructure:"scratch" yaml:"scratch"`
	CSSOutput    string   `mapstructure:"css_output" yaml:"css_output"`
	JSOutput     string   `mapstructure:"js_output" yaml:"js_output"`
	BaseCSS      []string `mapstructure:"base_css" yaml:"base_css"`
	FontsSource  string   `mapstructure:"fonts_source" yaml:"fonts_source"`
	FontsOutput  string   `mapstructure:"fonts_output" yaml:"fonts_output"`
	ImagesSource string   `mapstructure:"images_source" yaml:"images_source"`
	ImagesOutput string   `mapstructure:"images_output" yaml:"images_output"`
}

// StylesConfig selects the enabled preprocessor families and how each is compiled.
type StylesConfig struct {
	Families  []string                  `mapstructure:"families" yaml:"families"`
	Sources   map[string]string         `mapstructure:"sources" yaml:"sources"`
	Compilers map[string]CompilerConfig `mapstructure:"compilers" yaml:"compilers"`
}

// CompilerConfig describes the external command for one family.
type CompilerConfig struct {
	Command  string   `mapstructure:"command" yaml:"command"`
	Args     []string `mapstructure:"args" yaml:"args,omitempty"`
	Prefixer string   `mapstructure:"prefixer" yaml:"prefixer,omitempty"`
	Browsers string   `mapstructure:"browsers" yaml:"browsers,omitempty"`
}

// ScriptsConfig holds the first-party and library script globs.
type ScriptsConfig struct {
	Sources          []string `mapstructure:"sources" yaml:"sources"`
	Exclude          []string `mapstructure:"exclude" yaml:"exclude"`
	Libraries        []string `mapstructure:"libraries" yaml:"libraries"`
	LibrariesExclude []string `mapstructure:"libraries_exclude" yaml:"libraries_exclude"`
	Target           string   `mapstructure:"target" yaml:"target"`
}

// BuildConfig mirrors the --prod, --save, --nostrict and --log1/--log2 flags.
type BuildConfig struct {
	Production bool `mapstructure:"production" yaml:"production"`
	Save       bool `mapstructure:"save" yaml:"save"`
	NoStrict   bool `mapstructure:"nostrict" yaml:"nostrict"`
	Verbosity  int  `mapstructure:"verbosity" yaml:"verbosity"`
}

// SyncConfig mirrors --sync[=url] and --port.
type SyncConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Proxy   string `mapstructure:"proxy" yaml:"proxy"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// WatchConfig tunes the watch orchestrator.
type WatchConfig struct {
	Debounce  time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Styles    []string      `mapstructure:"styles" yaml:"styles"`
	Scripts   []string      `mapstructure:"scripts" yaml:"scripts"`
	Assets    []string      `mapstructure:"assets" yaml:"assets"`
	Templates []string      `mapstructure:"templates" yaml:"templates"`
	Ignore    []string      `mapstructure:"ignore" yaml:"ignore"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every key with its default so that AutomaticEnv
// overrides and Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")

	v.SetDefault("paths.output", "assets")
	v.SetDefault("paths.scratch", "assets/styles")
	v.SetDefault("paths.css_output", "assets/css")
	v.SetDefault("paths.js_output", "assets/js")
	v.SetDefault("paths.base_css", []string{"dev/css/**/*.css"})
	v.SetDefault("paths.fonts_source", "dev/fonts")
	v.SetDefault("paths.fonts_output", "assets/fonts")
	v.SetDefault("paths.images_source", "dev/images")
	v.SetDefault("paths.images_output", "assets/images")

	v.SetDefault("styles.families", []string{"sass", "less", "stylus"})
	v.SetDefault("styles.sources", map[string]string{
		"sass":   "dev/sass",
		"less":   "dev/less",
		"stylus": "dev/stylus",
	})
	v.SetDefault("styles.compilers", map[string]interface{}{
		"sass":   map[string]interface{}{"command": "sass", "prefixer": "postcss"},
		"less":   map[string]interface{}{"command": "lessc", "browsers": "last 5 versions"},
		"stylus": map[string]interface{}{"command": "stylus"},
	})

	v.SetDefault("scripts.sources", []string{"dev/js/*.js"})
	v.SetDefault("scripts.exclude", []string{"dev/js/**/*.min.js"})
	v.SetDefault("scripts.libraries", []string{"dev/js/**/*"})
	v.SetDefault("scripts.libraries_exclude", []string{"dev/js/*.js"})
	v.SetDefault("scripts.target", "es2015")

	v.SetDefault("build.production", false)
	v.SetDefault("build.save", false)
	v.SetDefault("build.nostrict", false)
	v.SetDefault("build.verbosity", 0)

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.proxy", DefaultProxyTarget)
	v.SetDefault("sync.port", DefaultPort)

	v.SetDefault("watch.debounce", 300*time.Millisecond)
	v.SetDefault("watch.styles", []string{
		"dev/less/**/*.less",
		"dev/sass/**/*.scss",
		"dev/stylus/**/*.styl",
		"dev/css/**/*.css",
	})
	v.SetDefault("watch.scripts", []string{"dev/js/**/*.js"})
	v.SetDefault("watch.assets", []string{"dev/images/**/*", "dev/fonts/**/*"})
	v.SetDefault("watch.templates", []string{"**/*.php", "**/*.html"})
	v.SetDefault("watch.ignore", []string{".git", "node_modules", "vendor", "assets"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load resolves configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves configuration from v, applying defaults for unset keys.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Root == "" {
		config.Root = "."
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.Options = config.buildOptions()

	return &config, nil
}

// Default returns the configuration used when no file, env or flag is set.
func Default() *Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return cfg
}

// LoadDotEnv loads <root>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(root string) error {
	err := godotenv.Load(filepath.Join(root, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func (c *Config) buildOptions() BuildOptions {
	return BuildOptions{
		Production:         c.Build.Production,
		RetainIntermediate: c.Build.Save,
		StrictJS:           !c.Build.NoStrict,
		LiveReload:         c.Sync.Enabled,
		ProxyTarget:        c.Sync.Proxy,
		Port:               c.Sync.Port,
		Verbosity:          Verbosity(c.Build.Verbosity),
	}
}

// Abs joins a project-relative path with Root.
func (c *Config) Abs(path string) string {
	return filepath.Join(c.Root, path)
}

// Package cmd provides the wsbuild command-line interface.
//
// Configuration System:
//
//	Settings are resolved once per invocation with clear precedence:
//	1. Command-line flags (--prod, --sync, --port, ...) - highest priority
//	2. WSBUILD_* environment variables, including those from <root>/.env
//	3. The .wsbuild.yml file in the project root (or --config / WSBUILD_CONFIG_FILE)
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	WSBUILD_CONFIG_FILE: Path to a custom configuration file
//	WSBUILD_SYNC_PROXY: Site proxied by watch --sync
//	WSBUILD_SYNC_PORT: Live-reload port
//	And every other key following the WSBUILD_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/logging"
)

// app carries the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// newRootCmd builds the command tree with its own viper instance.
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "wsbuild",
		Short: "Asset pipeline for the websites-starter WordPress theme",
		Long: `wsbuild compiles the theme's SASS, LESS and Stylus sources into one
stylesheet per variant, minifies its scripts, copies fonts and images and,
in watch mode, keeps a proxied WordPress site reloaded while you work.

Quick Start:
  wsbuild init                    Write a default .wsbuild.yml
  wsbuild build                   Clean and rebuild every asset
  wsbuild build --prod            Production build, no source maps
  wsbuild watch --sync            Rebuild on change, live reload http://localhost/
  wsbuild watch --sync=http://starter.test/ --port=3001`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}

	a.addPipelineFlags(rootCmd.PersistentFlags())

	for _, name := range taskNames() {
		rootCmd.AddCommand(a.newTaskCmd(name))
	}
	rootCmd.AddCommand(a.newWatchCmd())
	rootCmd.AddCommand(a.newInitCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the command line and reports a failure on stderr.
func Execute() error {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func (a *app) addPipelineFlags(flags *pflag.FlagSet) {
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is <root>/.wsbuild.yml, can also use WSBUILD_CONFIG_FILE env var)")
	flags.String("root", ".", "theme root directory")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	flags.Bool("prod", false, "production build: minify, drop console calls, no source maps")
	flags.Bool("save", false, "keep previous outputs and intermediate stylesheets")
	flags.Bool("nostrict", false, "skip down-levelling scripts to scripts.target")
	flags.String("sync", "", "live reload through a proxy of the given site")
	flags.Lookup("sync").NoOptDefVal = config.DefaultProxyTarget
	flags.Int("port", config.DefaultPort, "live-reload port")
	flags.Bool("log1", false, "log stage completion and configuration errors")
	flags.Bool("log2", false, "log every variant and file")

	addFlagValidation(flags, "port", validatePort)
	addFlagValidation(flags, "sync", validateSyncTarget)

	for flag, key := range map[string]string{
		"root":      "root",
		"log-level": "log.level",
		"prod":      "build.production",
		"save":      "build.save",
		"nostrict":  "build.nostrict",
		"port":      "sync.port",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig wires env, .env and the config file into viper and applies the
// flags that do not map one to one onto a key.
func (a *app) initConfig(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix("WSBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	config.SetDefaults(v)

	root := v.GetString("root")
	if err := config.LoadDotEnv(root); err != nil {
		return err
	}

	switch {
	case a.cfgFile != "":
		v.SetConfigFile(a.cfgFile)
	case os.Getenv("WSBUILD_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv("WSBUILD_CONFIG_FILE"))
	default:
		v.AddConfigPath(root)
		v.SetConfigType("yaml")
		v.SetConfigName(".wsbuild")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flag := flags.Lookup("sync"); flag != nil && flag.Changed {
		v.Set("sync.enabled", true)
		v.Set("sync.proxy", flag.Value.String())
	}
	if on, _ := flags.GetBool("log2"); on {
		v.Set("build.verbosity", int(config.VerbosityDetail))
	} else if on, _ := flags.GetBool("log1"); on {
		v.Set("build.verbosity", int(config.VerbosityStages))
	}

	return nil
}

// load resolves the configuration and a logger writing to cmd's stderr.
func (a *app) load(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})

	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}

	return cfg, logger, nil
}

package config

import (
	"fmt"

	"github.com/websites-starter/wsbuild/internal/validation"
)

var knownFamilies = map[string]bool{
	"sass":   true,
	"less":   true,
	"stylus": true,
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validatePaths(config); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateStyles(&config.Styles); err != nil {
		return fmt.Errorf("styles config: %w", err)
	}

	if err := validateSync(&config.Sync); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if config.Build.Verbosity < 0 || config.Build.Verbosity > 2 {
		return fmt.Errorf("build config: verbosity %d is not in range 0-2", config.Build.Verbosity)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce must not be negative")
	}

	return nil
}

func validatePaths(config *Config) error {
	p := config.Paths
	for name, path := range map[string]string{
		"output":        p.Output,
		"scratch":       p.Scratch,
		"css_output":    p.CSSOutput,
		"js_output":     p.JSOutput,
		"fonts_source":  p.FontsSource,
		"fonts_output":  p.FontsOutput,
		"images_source": p.ImagesSource,
		"images_output": p.ImagesOutput,
	} {
		if err := validation.ValidatePath(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

func validateStyles(config *StylesConfig) error {
	seen := make(map[string]bool, len(config.Families))
	for _, family := range config.Families {
		if !knownFamilies[family] {
			return fmt.Errorf("family %q is not supported (want sass, less or stylus)", family)
		}
		if seen[family] {
			return fmt.Errorf("family %q listed twice", family)
		}
		seen[family] = true

		source, ok := config.Sources[family]
		if !ok {
			return fmt.Errorf("family %q has no source directory", family)
		}
		if err := validation.ValidatePath(source); err != nil {
			return fmt.Errorf("%s source: %w", family, err)
		}

		compiler, ok := config.Compilers[family]
		if !ok || compiler.Command == "" {
			return fmt.Errorf("family %q has no compiler command", family)
		}
		for _, arg := range compiler.Args {
			if err := validation.ValidateArgument(arg); err != nil {
				return fmt.Errorf("%s compiler argument: %w", family, err)
			}
		}
	}

	return nil
}

func validateSync(config *SyncConfig) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 1-65535", config.Port)
	}

	if config.Enabled {
		if err := validation.ValidateURL(config.Proxy); err != nil {
			return fmt.Errorf("proxy target: %w", err)
		}
	}

	return nil
}

package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/websites-starter/wsbuild/internal/config"
)

const configFileName = ".wsbuild.yml"

func (a *app) newInitCmd() *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Write a .wsbuild.yml with the default settings",
		Long: `Write the default configuration to .wsbuild.yml in the theme root so it
can be edited. An existing file is left alone unless --force is given.

Examples:
  wsbuild init                   # Write ./.wsbuild.yml
  wsbuild init --root ../theme   # Write ../theme/.wsbuild.yml
  wsbuild init --force           # Overwrite an existing file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(cmd, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return initCmd
}

func (a *app) runInit(cmd *cobra.Command, force bool) error {
	root := a.v.GetString("root")
	path := filepath.Join(root, configFileName)

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", root, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

// defaultConfigYAML renders the built-in defaults. Root is left out so the
// file stays valid when the theme directory moves.
func defaultConfigYAML() ([]byte, error) {
	cfg := config.Default()

	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	mapping := &doc
	if mapping.Kind == yaml.DocumentNode && len(mapping.Content) > 0 {
		mapping = mapping.Content[0]
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "root" {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteString("# wsbuild configuration. Flags and WSBUILD_* variables override these values.\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(mapping); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

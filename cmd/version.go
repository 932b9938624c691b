package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/websites-starter/wsbuild/internal/version"
)

func newVersionCmd() *cobra.Command {
	var (
		format   string
		detailed bool
	)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the wsbuild version, commit, build time, Go version and platform.

Examples:
  wsbuild version              # Short version
  wsbuild version --detailed   # Every field
  wsbuild version --format json`,
		Args: cobra.NoArgs,
		// Version never needs the project configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			case "text":
				if detailed {
					fmt.Fprintln(out, info.String())
				} else {
					fmt.Fprintln(out, "wsbuild", info.Short())
				}
				return nil
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}
		},
	}

	versionCmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	versionCmd.Flags().BoolVar(&detailed, "detailed", false, "show detailed version information")

	return versionCmd
}

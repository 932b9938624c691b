package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/websites-starter/wsbuild/internal/build"
	"github.com/websites-starter/wsbuild/internal/tasks"
)

var taskDescriptions = map[string]string{
	"build":  "Clean the output tree and rebuild every asset",
	"clean":  "Delete the output tree",
	"assets": "Copy fonts and images",
	"styles": "Compile and merge the stylesheet variants",
	"js":     "Minify first-party scripts and copy libraries",
}

var taskAliases = map[string][]string{
	"build": {"b"},
}

func taskNames() []string {
	return tasks.Names()
}

func (a *app) newTaskCmd(name string) *cobra.Command {
	seq, _ := tasks.Lookup(name)

	return &cobra.Command{
		Use:     name,
		Aliases: taskAliases[name],
		Short:   taskDescriptions[name],
		Long: fmt.Sprintf("%s.\n\nStages: %v",
			taskDescriptions[name], seq.Stages()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(cmd, seq)
		},
	}
}

// newPipeline returns a task runner with every stage bound to a builder for
// the current configuration.
func (a *app) newPipeline(cmd *cobra.Command) (*tasks.Runner, error) {
	cfg, logger, err := a.load(cmd)
	if err != nil {
		return nil, err
	}

	builder, err := build.NewBuilder(cfg, logger)
	if err != nil {
		return nil, err
	}

	runner := tasks.NewRunner(logger)
	builder.Register(runner)
	return runner, nil
}

func (a *app) runTask(cmd *cobra.Command, seq tasks.Sequence) error {
	runner, err := a.newPipeline(cmd)
	if err != nil {
		return err
	}
	return runner.Run(cmd.Context(), seq)
}

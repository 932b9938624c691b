// Package tasks describes the pipeline's task plans as data and runs them.
//
// A Sequence is an ordered list of named stages. Stage functions are bound
// at runtime through a Runner, so plans can be inspected and validated
// without touching the filesystem.
package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
)

// Stage names.
const (
	StageCleanAll            = "cleanAll"
	StageCleanStyles         = "cleanStyles"
	StageCleanJavaScript     = "cleanJavaScript"
	StageFonts               = "fonts"
	StageImages              = "images"
	StageStyles              = "styles"
	StageJavaScript          = "javaScript"
	StageJavaScriptLibraries = "javaScriptLibraries"
)

// StageFunc performs one stage.
type StageFunc func(ctx context.Context) error

// Step is one stage of a sequence. After names stages that must have
// completed earlier in the same sequence.
type Step struct {
	Stage string
	After []string
}

// Sequence is a named, strictly ordered list of steps.
type Sequence struct {
	Name  string
	Steps []Step
}

// Stages returns the stage names in execution order.
func (s Sequence) Stages() []string {
	names := make([]string, len(s.Steps))
	for i, step := range s.Steps {
		names[i] = step.Stage
	}
	return names
}

// Validate checks that every dependency of a step runs before it.
func (s Sequence) Validate() error {
	done := make(map[string]bool, len(s.Steps))
	for _, step := range s.Steps {
		for _, dep := range step.After {
			if !done[dep] {
				return fmt.Errorf("sequence %s: stage %s must run after %s", s.Name, step.Stage, dep)
			}
		}
		done[step.Stage] = true
	}
	return nil
}

// Task plans exposed on the command line.
var (
	Build = Sequence{Name: "build", Steps: []Step{
		{Stage: StageCleanAll},
		{Stage: StageImages, After: []string{StageCleanAll}},
		{Stage: StageFonts, After: []string{StageCleanAll}},
		{Stage: StageStyles, After: []string{StageCleanAll}},
		{Stage: StageJavaScript, After: []string{StageCleanAll}},
		{Stage: StageJavaScriptLibraries, After: []string{StageJavaScript}},
	}}

	Clean = Sequence{Name: "clean", Steps: []Step{
		{Stage: StageCleanAll},
	}}

	Assets = Sequence{Name: "assets", Steps: []Step{
		{Stage: StageImages},
		{Stage: StageFonts},
	}}

	Styles = Sequence{Name: "styles", Steps: []Step{
		{Stage: StageCleanStyles},
		{Stage: StageStyles, After: []string{StageCleanStyles}},
	}}

	JS = Sequence{Name: "js", Steps: []Step{
		{Stage: StageCleanJavaScript},
		{Stage: StageJavaScript, After: []string{StageCleanJavaScript}},
		{Stage: StageJavaScriptLibraries, After: []string{StageJavaScript}},
	}}
)

// Watch-mode plans.
var (
	InitialBuild = Sequence{Name: "watch", Steps: []Step{
		{Stage: StageCleanAll},
		{Stage: StageFonts, After: []string{StageCleanAll}},
		{Stage: StageImages, After: []string{StageCleanAll}},
		{Stage: StageStyles, After: []string{StageCleanAll}},
		{Stage: StageJavaScript, After: []string{StageCleanAll}},
		{Stage: StageJavaScriptLibraries, After: []string{StageJavaScript}},
	}}

	StylesChanged = Sequence{Name: "styles-changed", Steps: Styles.Steps}

	ScriptsChanged = Sequence{Name: "scripts-changed", Steps: JS.Steps}

	AssetsChanged = Sequence{Name: "assets-changed", Steps: []Step{
		{Stage: StageFonts},
		{Stage: StageImages},
	}}

	TemplatesChanged = Sequence{Name: "templates-changed"}
)

var named = map[string]Sequence{
	Build.Name:  Build,
	Clean.Name:  Clean,
	Assets.Name: Assets,
	Styles.Name: Styles,
	JS.Name:     JS,
}

// Lookup returns the command-line task plan called name.
func Lookup(name string) (Sequence, bool) {
	seq, ok := named[name]
	return seq, ok
}

// Names returns the command-line task names, sorted.
func Names() []string {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runner binds stage names to functions and executes sequences.
type Runner struct {
	stages map[string]StageFunc
	logger logging.Logger
}

// NewRunner creates a runner with no stages bound.
func NewRunner(logger logging.Logger) *Runner {
	return &Runner{
		stages: make(map[string]StageFunc),
		logger: logger.WithComponent("tasks"),
	}
}

// Register binds fn to stage, replacing any earlier binding.
func (r *Runner) Register(stage string, fn StageFunc) {
	r.stages[stage] = fn
}

// Run executes seq's stages one at a time. The first failing stage stops
// the sequence and its error is returned tagged with the stage name.
func (r *Runner) Run(ctx context.Context, seq Sequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	for _, step := range seq.Steps {
		if _, ok := r.stages[step.Stage]; !ok {
			return errors.NewValidationError(errors.ErrCodeUnknownTask,
				fmt.Sprintf("no function bound to stage %s", step.Stage)).WithTask(seq.Name)
		}
	}

	op := logging.StartOperation(r.logger, seq.Name)
	r.logger.Info(ctx, "Starting '"+seq.Name+"'")

	for _, step := range seq.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		stage := logging.StartOperation(r.logger, step.Stage)
		if err := r.stages[step.Stage](ctx); err != nil {
			stage.EndWithError(ctx, err)
			return tagStage(err, step.Stage)
		}
		stage.End(ctx)
	}

	op.End(ctx)
	r.logger.Info(ctx, "Finished '"+seq.Name+"'")

	return nil
}

func tagStage(err error, stage string) error {
	if pe, ok := err.(*errors.PipelineError); ok {
		if pe.Task == "" {
			pe.WithTask(stage)
		}
		return pe
	}
	return fmt.Errorf("%s: %w", stage, err)
}

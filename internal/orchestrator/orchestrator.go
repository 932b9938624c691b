// Package orchestrator drives watch mode: an initial full build, then one
// task plan per class of changed file, each followed by a browser reload.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
	"github.com/websites-starter/wsbuild/internal/tasks"
	"github.com/websites-starter/wsbuild/internal/watcher"
	"github.com/websites-starter/wsbuild/internal/websocket"
)

// State is the watch session's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateInitialBuild
	StateWatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialBuild:
		return "initial-build"
	case StateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// ChangeClass groups watched files by the plan they trigger.
type ChangeClass string

const (
	ClassStyles    ChangeClass = "styles"
	ClassScripts   ChangeClass = "scripts"
	ClassAssets    ChangeClass = "assets"
	ClassTemplates ChangeClass = "templates"
)

// Classes lists every change class in a stable order.
func Classes() []ChangeClass {
	return []ChangeClass{ClassStyles, ClassScripts, ClassAssets, ClassTemplates}
}

var plans = map[ChangeClass]tasks.Sequence{
	ClassStyles:    tasks.StylesChanged,
	ClassScripts:   tasks.ScriptsChanged,
	ClassAssets:    tasks.AssetsChanged,
	ClassTemplates: tasks.TemplatesChanged,
}

// Plan returns the task plan run for class.
func Plan(class ChangeClass) (tasks.Sequence, bool) {
	seq, ok := plans[class]
	return seq, ok
}

// Reloader notifies browsers after a rebuild.
type Reloader interface {
	Reload(ctx context.Context, kind string) error
}

type classState struct {
	running bool
	pending bool
}

// Orchestrator runs plans in response to changes. Runs of the same class
// never overlap: a change arriving mid-run queues exactly one follow-up.
type Orchestrator struct {
	runner   *tasks.Runner
	reloader Reloader
	logger   logging.Logger
	errs     *errors.ErrorHandler

	state    atomic.Int32
	mutex    sync.Mutex
	classes  map[ChangeClass]*classState
	inflight sync.WaitGroup
}

// New creates an idle orchestrator. reloader may be nil when live reload
// is off.
func New(runner *tasks.Runner, reloader Reloader, logger logging.Logger) *Orchestrator {
	logger = logger.WithComponent("orchestrator")

	o := &Orchestrator{
		runner:   runner,
		reloader: reloader,
		logger:   logger,
		errs:     errors.NewErrorHandler(logger),
		classes:  make(map[ChangeClass]*classState),
	}
	for _, class := range Classes() {
		o.classes[class] = &classState{}
	}
	return o
}

// State reports the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Start runs the initial build and enters watching. A failed initial build
// is reported and returned, but the orchestrator still starts watching so
// that fixing the sources recovers. Changes seen during the initial build
// are replayed afterwards, once per class.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateInitialBuild)) {
		return fmt.Errorf("orchestrator already started (state %s)", o.State())
	}

	err := o.runner.Run(ctx, tasks.InitialBuild)
	if err != nil {
		o.errs.Handle(ctx, err)
	} else {
		o.reload(ctx, websocket.MessageFullReload)
	}

	o.mutex.Lock()
	o.state.Store(int32(StateWatching))
	var replay []ChangeClass
	for _, class := range Classes() {
		if o.classes[class].pending {
			o.classes[class].pending = false
			replay = append(replay, class)
		}
	}
	o.mutex.Unlock()

	o.logger.Info(ctx, "Watching for changes")

	for _, class := range replay {
		_ = o.Trigger(ctx, class)
	}

	return err
}

// Trigger runs class's plan, or queues it when a run of the same class is
// in flight or the initial build has not finished. It returns the error of
// the last run it performed.
func (o *Orchestrator) Trigger(ctx context.Context, class ChangeClass) error {
	plan, ok := plans[class]
	if !ok {
		return errors.NewValidationError(errors.ErrCodeUnknownTask, fmt.Sprintf("unknown change class %q", class))
	}

	o.mutex.Lock()
	cs := o.classes[class]
	if o.State() != StateWatching || cs.running {
		cs.pending = true
		o.mutex.Unlock()
		return nil
	}
	cs.running = true
	o.mutex.Unlock()

	var err error
	for {
		err = o.runner.Run(ctx, plan)
		if err != nil {
			o.errs.Handle(ctx, err)
		} else {
			o.reload(ctx, reloadKind(class))
		}

		o.mutex.Lock()
		if cs.pending && ctx.Err() == nil {
			cs.pending = false
			o.mutex.Unlock()
			continue
		}
		cs.running = false
		o.mutex.Unlock()
		return err
	}
}

// Handler adapts Trigger to a watcher change handler. The plan runs in
// the background so that changes arriving during a run are coalesced.
func (o *Orchestrator) Handler(ctx context.Context, class ChangeClass) watcher.ChangeHandler {
	return func(events []watcher.ChangeEvent) error {
		files := make([]string, len(events))
		for i, event := range events {
			files[i] = event.RelPath
		}
		o.logger.Info(ctx, "Change detected", "class", string(class), "files", files)

		o.inflight.Add(1)
		go func() {
			defer o.inflight.Done()
			_ = o.Trigger(ctx, class)
		}()
		return nil
	}
}

// Wait blocks until every run started by a Handler has returned.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

func (o *Orchestrator) reload(ctx context.Context, kind string) {
	if o.reloader == nil {
		return
	}
	if err := o.reloader.Reload(ctx, kind); err != nil {
		o.errs.Handle(ctx, err)
	}
}

func reloadKind(class ChangeClass) string {
	if class == ClassStyles {
		return websocket.MessageCSSReload
	}
	return websocket.MessageFullReload
}

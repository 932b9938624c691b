package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/logging"
	"github.com/websites-starter/wsbuild/internal/server"
	"github.com/websites-starter/wsbuild/internal/tasks"
	"github.com/websites-starter/wsbuild/internal/watcher"
)

// Session is one run of the watch command: file watchers per change class,
// the orchestrator they feed and, with live reload on, the proxy server.
type Session struct {
	ID string

	cfg          *config.Config
	orchestrator *Orchestrator
	server       *server.ReloadServer
	logger       logging.Logger
}

// NewSession prepares a watch session over runner's stages.
func NewSession(cfg *config.Config, runner *tasks.Runner, logger logging.Logger) (*Session, error) {
	id := uuid.NewString()
	logger = logger.With("session", id)

	s := &Session{
		ID:     id,
		cfg:    cfg,
		logger: logger.WithComponent("session"),
	}

	var reloader Reloader
	if cfg.Options.LiveReload {
		srv, err := server.New(cfg.Options, id, logger)
		if err != nil {
			return nil, err
		}
		s.server = srv
		reloader = srv
	}

	s.orchestrator = New(runner, reloader, logger)
	return s, nil
}

// Orchestrator returns the session's orchestrator.
func (s *Session) Orchestrator() *Orchestrator {
	return s.orchestrator
}

// Server returns the live-reload server, or nil when live reload is off.
func (s *Session) Server() *server.ReloadServer {
	return s.server
}

// Patterns returns the watch globs for class.
func (s *Session) Patterns(class ChangeClass) []string {
	switch class {
	case ClassStyles:
		return s.cfg.Watch.Styles
	case ClassScripts:
		return s.cfg.Watch.Scripts
	case ClassAssets:
		return s.cfg.Watch.Assets
	case ClassTemplates:
		// Templates only matter to a browser that can be reloaded.
		if s.server == nil {
			return nil
		}
		return s.cfg.Watch.Templates
	default:
		return nil
	}
}

// Run watches until ctx is cancelled or the live-reload server fails.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var watchers []*watcher.FileWatcher
	stopWatchers := func() {
		for _, fw := range watchers {
			_ = fw.Stop()
		}
		watchers = nil
	}
	defer stopWatchers()

	for _, class := range Classes() {
		patterns := s.Patterns(class)
		if len(patterns) == 0 {
			continue
		}

		fw, err := s.newWatcher(ctx, class, patterns)
		if err != nil {
			return fmt.Errorf("watching %s: %w", class, err)
		}
		watchers = append(watchers, fw)
	}

	if s.server != nil {
		g.Go(func() error {
			return s.server.Start(ctx)
		})
	}

	g.Go(func() error {
		// A failed initial build is already reported; keep watching.
		_ = s.orchestrator.Start(ctx)
		<-ctx.Done()
		return nil
	})

	s.logger.Info(ctx, "Watch session started",
		"root", s.cfg.Root,
		"live_reload", s.server != nil)

	err := g.Wait()

	// No handler may start a run once the orchestrator is being drained.
	stopWatchers()
	s.orchestrator.Wait()
	return err
}

func (s *Session) newWatcher(ctx context.Context, class ChangeClass, patterns []string) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(s.cfg.Root, s.cfg.Watch.Debounce, s.logger)
	if err != nil {
		return nil, err
	}

	fw.Ignore(s.cfg.Watch.Ignore...)
	fw.AddFilter(watcher.GlobFilter(patterns...))
	fw.AddHandler(s.orchestrator.Handler(ctx, class))

	if err := fw.WatchGlobs(patterns...); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}

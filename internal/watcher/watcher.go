// Package watcher reports debounced batches of file changes below a project
// root, filtered by doublestar globs.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/websites-starter/wsbuild/internal/logging"
)

// FileWatcher watches for file changes with intelligent debouncing
type FileWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	ignore    map[string]bool
	logger    logging.Logger
	mutex     sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
	loops    sync.WaitGroup
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	// Path is absolute; RelPath is relative to the watcher root, slash separated.
	Path    string
	RelPath string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a root-relative, slash separated path is of interest.
type FileFilter func(relPath string) bool

// ChangeHandler handles file change events
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewFileWatcher creates a watcher for paths below root.
func NewFileWatcher(root string, debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debouncer := &Debouncer{
		delay:   debounceDelay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	fw := &FileWatcher{
		root:      absRoot,
		watcher:   watcher,
		debouncer: debouncer,
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		ignore:    make(map[string]bool),
		logger:    logger.WithComponent("watcher"),
		done:      make(chan struct{}),
	}

	return fw, nil
}

// Root returns the absolute directory the watcher is confined to.
func (fw *FileWatcher) Root() string {
	return fw.root
}

// AddFilter adds a file filter. An event must pass every filter.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// Ignore skips the named top-level directories of the root when walking
// and drops events below them.
func (fw *FileWatcher) Ignore(dirs ...string) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	for _, dir := range dirs {
		fw.ignore[dir] = true
	}
}

// AddPath adds a path to watch
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := fw.validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(cleanPath)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := fw.validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}
		if path != cleanRoot && fw.ignored(path) {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// WatchGlobs adds the static base directory of every pattern recursively.
// Patterns whose base does not exist yet are skipped.
func (fw *FileWatcher) WatchGlobs(patterns ...string) error {
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
		if seen[base] {
			continue
		}
		seen[base] = true

		abs := filepath.Join(fw.root, filepath.FromSlash(base))
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			fw.logger.Debug(context.Background(), "Watch base missing", "base", base)
			continue
		}
		if err := fw.AddRecursive(abs); err != nil {
			return err
		}
	}
	return nil
}

// validatePath resolves path against the root and rejects anything that
// escapes it.
func (fw *FileWatcher) validatePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(fw.root, path)
	}
	cleanPath := filepath.Clean(path)

	rel, err := filepath.Rel(fw.root, cleanPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the project root", path)
	}

	return cleanPath, nil
}

func (fw *FileWatcher) relPath(path string) string {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (fw *FileWatcher) ignored(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	top, _, _ := strings.Cut(fw.relPath(path), "/")
	return fw.ignore[top]
}

// Start starts the file watcher. It returns once the event loops are
// running.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.loops.Add(3)
	go func() {
		defer fw.loops.Done()
		fw.debouncer.start(ctx, fw.done)
	}()
	go func() {
		defer fw.loops.Done()
		fw.processEvents(ctx)
	}()
	go func() {
		defer fw.loops.Done()
		fw.watchLoop(ctx)
	}()

	return nil
}

// Stop closes the watcher and waits for its loops to exit. Once Stop
// returns no handler is running or will be called again.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() { close(fw.done) })

	fw.debouncer.mutex.Lock()
	if fw.debouncer.timer != nil {
		fw.debouncer.timer.Stop()
	}
	fw.debouncer.mutex.Unlock()

	err := fw.watcher.Close()
	fw.loops.Wait()
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if fw.ignored(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64

	if err == nil {
		if info.IsDir() {
			if event.Op&fsnotify.Create == fsnotify.Create {
				if err := fw.AddRecursive(event.Name); err != nil {
					fw.logger.Warn(context.Background(), err, "Cannot watch new directory", "path", event.Name)
				}
			}
			return
		}
		modTime = info.ModTime()
		size = info.Size()
	}

	rel := fw.relPath(event.Name)

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(rel) {
			return
		}
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		RelPath: rel,
		ModTime: modTime,
		Size:    size,
	}

	select {
	case fw.debouncer.events <- changeEvent:
	default:
		fw.logger.Debug(context.Background(), "Event dropped, debouncer busy", "path", rel)
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler error")
				}
			}
		}
	}
}

// Debouncer implementation
func (d *Debouncer) start(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.flush()
	})
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Last event per path wins.
	eventMap := make(map[string]ChangeEvent)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
	}

	d.pending = d.pending[:0]
}

// GlobFilter accepts paths matching any of the doublestar patterns.
func GlobFilter(patterns ...string) FileFilter {
	cleaned := make([]string, len(patterns))
	for i, pattern := range patterns {
		cleaned[i] = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	}
	return func(relPath string) bool {
		for _, pattern := range cleaned {
			if ok, _ := doublestar.Match(pattern, relPath); ok {
				return true
			}
		}
		return false
	}
}

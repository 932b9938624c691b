// Package internal contains the implementation packages behind the wsbuild
// CLI.
//
// # Package Organization
//
//   - config: viper-backed configuration and the immutable BuildOptions
//   - registry: discovers stylesheet variants per preprocessor family
//   - build: compiler adapters, variant merging, scripts, static assets and cleaning
//   - tasks: task plans as data and the runner that executes them
//   - watcher: fsnotify watching with glob filters and debouncing
//   - orchestrator: the watch session state machine
//   - server, websocket: the live-reload proxy and its browser hub
//   - errors, logging, validation, version: shared support code
//
// # Data Flow
//
// A CLI task resolves a tasks.Sequence and runs it through a tasks.Runner
// whose stages are bound by build.Builder. Watch mode runs the initial build
// plan, then one plan per class of changed file, and asks the server to
// reload connected browsers after each successful run.
package internal

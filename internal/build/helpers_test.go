package build

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/websites-starter/wsbuild/internal/config"
	"github.com/websites-starter/wsbuild/internal/logging"
)

type fakeCall struct {
	dir     string
	command string
	args    []string
}

// fakeRunner stands in for the preprocessors: it records every call and
// writes a small stylesheet to the output argument.
type fakeRunner struct {
	fs    afero.Fs
	mutex sync.Mutex
	calls []fakeCall
	fail  map[string]error
}

var fakeOutput = map[string]string{
	"sass":   ".sass-rule{color:red}\n",
	"lessc":  ".less-rule{color:green}\n",
	"stylus": ".stylus-rule{color:blue}\n",
}

func (f *fakeRunner) Run(ctx context.Context, dir, command string, args ...string) ([]byte, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, fakeCall{dir: dir, command: command, args: append([]string(nil), args...)})
	f.mutex.Unlock()

	if err := f.fail[command]; err != nil {
		return []byte(command + ": syntax error on line 3"), err
	}

	if out := outputArg(command, args); out != "" {
		if err := afero.WriteFile(f.fs, out, []byte(fakeOutput[command]), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *fakeRunner) recorded() []fakeCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func outputArg(command string, args []string) string {
	switch command {
	case "sass", "lessc":
		if len(args) > 0 {
			return args[len(args)-1]
		}
	case "stylus":
		for i, arg := range args {
			if arg == "--out" && i+1 < len(args) {
				return args[i+1]
			}
		}
	}
	return ""
}

var errCompile = errors.New("exit status 1")

type testProject struct {
	cfg     *config.Config
	fs      afero.Fs
	runner  *fakeRunner
	builder *Builder
}

// newTestProject returns a builder over an in-memory project. tweak may
// adjust the configuration before the builder is created.
func newTestProject(t *testing.T, tweak func(cfg *config.Config)) *testProject {
	t.Helper()

	cfg := config.Default()
	cfg.Root = t.TempDir()
	if tweak != nil {
		tweak(cfg)
	}

	fs := afero.NewMemMapFs()
	runner := &fakeRunner{fs: fs}

	builder, err := NewBuilder(cfg, logging.Discard(), WithFs(fs), WithRunner(runner))
	require.NoError(t, err)

	return &testProject{cfg: cfg, fs: fs, runner: runner, builder: builder}
}

func (p *testProject) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(p.fs, name, []byte(content), 0o644))
}

func (p *testProject) read(t *testing.T, name string) string {
	t.Helper()
	data, err := afero.ReadFile(p.fs, name)
	require.NoError(t, err)
	return string(data)
}

func (p *testProject) exists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := afero.Exists(p.fs, name)
	require.NoError(t, err)
	return ok
}

func production(cfg *config.Config) {
	cfg.Options.Production = true
}

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/arciisine/npx-types-plugin/internal/annotate"
	"github.com/arciisine/npx-types-plugin/internal/directive"
	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/install"
	"github.com/arciisine/npx-types-plugin/internal/logging"
)

type fakeRunner struct {
	fs      afero.Fs
	spawns  atomic.Int32
	fail    string
	entered chan struct{}
	release chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, cmd install.Command) (*install.Result, error) {
	if r.spawns.Add(1) == 1 && r.entered != nil {
		close(r.entered)
	}
	if r.release != nil {
		<-r.release
	}
	if r.fail != "" {
		return &install.Result{ExitCode: 1, Stderr: r.fail}, nil
	}

	ref := directive.MustParseRef(cmd.Args[len(cmd.Args)-1])
	version := ref.Version()
	if version == "" {
		version = "1.0.0"
	}
	dir := filepath.Join(cmd.Dir, "node_modules", filepath.FromSlash(ref.Name()))
	_ = r.fs.MkdirAll(dir, 0o755)
	manifest := fmt.Sprintf(`{"name":%q,"version":%q,"types":"index.d.ts"}`, ref.Name(), version)
	_ = afero.WriteFile(r.fs, filepath.Join(dir, "package.json"), []byte(manifest), 0o644)
	_ = afero.WriteFile(r.fs, filepath.Join(dir, "index.js"), nil, 0o644)
	_ = afero.WriteFile(r.fs, filepath.Join(dir, "index.d.ts"), nil, 0o644)
	return &install.Result{}, nil
}

type testEnv struct {
	fs      afero.Fs
	root    string
	project string
	runner  *fakeRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	fs := afero.NewOsFs()
	env := &testEnv{
		fs:      fs,
		root:    filepath.Join(base, "cache"),
		project: filepath.Join(base, "project"),
		runner:  &fakeRunner{fs: fs},
	}
	if err := fs.MkdirAll(env.project, 0o755); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) session(t *testing.T, launcher string) *Session {
	t.Helper()
	c, err := install.New(install.Options{
		Root:     e.root,
		Fs:       e.fs,
		Runner:   e.runner,
		Resolver: install.NewResolver(e.fs, e.project, nil),
		Logger:   logging.NewNoop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(Options{
		Cache:  c,
		Parser: directive.NewParser(launcher),
		Logger: logging.NewNoop(),
	})
}

func countAnnotations(lines []string) int {
	n := 0
	for _, l := range lines {
		if directive.IsAnnotationLine(l) {
			n++
		}
	}
	return n
}

func TestSession_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	s := env.session(t, "runner")
	buf := annotate.NewMemBuffer("#!/usr/bin/env runner left-pad@1.3.0\n")

	res, err := s.Process(context.Background(), "script.js", buf)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.State != StateValid || !res.Changed {
		t.Errorf("Process() = %+v", res)
	}

	lines := buf.Lines()
	if n := countAnnotations(lines); n != 1 {
		t.Fatalf("annotation lines = %d, want 1: %q", n, lines)
	}
	path, ok := directive.ExtractAnnotationValue(lines)
	if !ok || filepath.Base(path) != "left-pad.1.3.0" {
		t.Errorf("annotation path = %q, %v", path, ok)
	}
	if lines[1] != directive.TSCheck {
		t.Errorf("line 1 = %q, want ts-check above the annotation", lines[1])
	}
	if s.Phase("script.js") != PhaseSynced {
		t.Errorf("phase = %v, want synced", s.Phase("script.js"))
	}

	before := buf.Mutations()
	res, err = s.Process(context.Background(), "script.js", buf)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if res.Changed || buf.Mutations() != before {
		t.Errorf("second Process() edited the buffer (%d -> %d)", before, buf.Mutations())
	}
	if n := env.runner.spawns.Load(); n != 1 {
		t.Errorf("spawns = %d, want 1", n)
	}

	// A new session finds the install through the annotation.
	fresh := env.session(t, "runner")
	if _, err := fresh.Process(context.Background(), "script.js", buf); err != nil {
		t.Fatal(err)
	}
	if buf.Mutations() != before || env.runner.spawns.Load() != 1 {
		t.Errorf("fresh session edited or installed (mutations %d, spawns %d)", buf.Mutations(), env.runner.spawns.Load())
	}
}

func TestSession_UsesExistingInstallWithoutPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	local := filepath.Join(env.project, "node_modules", "left-pad")
	_ = env.fs.MkdirAll(local, 0o755)
	_ = afero.WriteFile(env.fs, filepath.Join(local, "package.json"), []byte(`{"name":"left-pad","version":"1.3.0"}`), 0o644)

	s := env.session(t, directive.DefaultLauncher)
	buf := annotate.NewMemBuffer("#!/usr/bin/env npx left-pad@1.3.0\nbody\n")
	res, err := s.Process(context.Background(), "a.js", buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != local {
		t.Errorf("Path = %q, want %q", res.Path, local)
	}
	if buf.Mutations() != 1 {
		t.Errorf("mutations = %d, want a single insert", buf.Mutations())
	}
	if env.runner.spawns.Load() != 0 {
		t.Error("an existing install was reinstalled")
	}
}

func TestSession_InstallFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.fail = "npm ERR! notarget No matching version found for left-pad@9.9.9.\n"
	s := env.session(t, directive.DefaultLauncher)
	buf := annotate.NewMemBuffer("#!/usr/bin/env npx left-pad@9.9.9\n")

	res, err := s.Process(context.Background(), "a.js", buf)
	if !errors.Is(err, npxerrors.ErrInstall) {
		t.Fatalf("Process() error = %v, want ErrInstall", err)
	}
	if res.State != StateFailed || s.Phase("a.js") != PhaseFailed {
		t.Errorf("state = %v, phase = %v", res.State, s.Phase("a.js"))
	}
	_, a, ok := directive.FindAnnotation(buf.Lines())
	if !ok || a.Kind != directive.KindFailed || a.Message != "No matching version found for left-pad@9.9.9." {
		t.Errorf("annotation = %+v, %v", a, ok)
	}

	if !s.ShouldPrompt("a.js") {
		t.Error("first ShouldPrompt() = false")
	}
	if s.ShouldPrompt("a.js") {
		t.Error("second ShouldPrompt() = true")
	}

	before := buf.Mutations()
	if _, err := s.Process(context.Background(), "a.js", buf); err == nil {
		t.Error("second Process() hid the recorded failure")
	}
	if env.runner.spawns.Load() != 1 || buf.Mutations() != before {
		t.Errorf("recorded failure retried (spawns %d, mutations %d -> %d)", env.runner.spawns.Load(), before, buf.Mutations())
	}

	env.runner.fail = ""
	env.runner.spawns.Store(0)
	buf = annotate.NewMemBuffer("#!/usr/bin/env npx left-pad@9.9.9\n" + a.String() + "\n")
	res, err = s.Reinstall(context.Background(), "a.js", buf)
	if err != nil {
		t.Fatalf("Reinstall() error = %v", err)
	}
	if res.State != StateValid || env.runner.spawns.Load() != 1 {
		t.Errorf("Reinstall() = %+v, spawns %d", res, env.runner.spawns.Load())
	}
	if !s.ShouldPrompt("a.js") {
		t.Error("ShouldPrompt() not re-armed after success")
	}
}

func TestSession_ConcurrentBuffersShareInstall(t *testing.T) {
	env := newTestEnv(t)
	env.runner.entered = make(chan struct{})
	env.runner.release = make(chan struct{})
	s := env.session(t, directive.DefaultLauncher)

	var wg sync.WaitGroup
	paths := make([]string, 2)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := annotate.NewMemBuffer("#!/usr/bin/env npx left-pad@1.3.0\n")
			res, err := s.Process(context.Background(), fmt.Sprintf("f%d.js", i), buf)
			if err != nil {
				t.Errorf("Process(%d) error = %v", i, err)
			}
			paths[i] = res.Path
		}(i)
	}
	<-env.runner.entered
	time.Sleep(20 * time.Millisecond)
	close(env.runner.release)
	wg.Wait()

	if paths[0] == "" || paths[0] != paths[1] {
		t.Errorf("paths = %q", paths)
	}
	if n := env.runner.spawns.Load(); n != 1 {
		t.Errorf("spawns = %d, want 1", n)
	}
}

func TestSession_ClearsStaleAnnotation(t *testing.T) {
	env := newTestEnv(t)
	s := env.session(t, directive.DefaultLauncher)
	buf := annotate.NewMemBuffer("#!/usr/bin/env node\n" + directive.Found("/x").String() + "\n")

	res, err := s.Process(context.Background(), "a.js", buf)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || countAnnotations(buf.Lines()) != 0 {
		t.Errorf("stale annotation kept: %q", buf.Lines())
	}

	plain := annotate.NewMemBuffer("console.log(1)\n")
	res, err = s.Process(context.Background(), "b.js", plain)
	if err != nil || res.State != StateNoModule || plain.Mutations() != 0 {
		t.Errorf("Process(non-candidate) = %+v, %v", res, err)
	}
}

func TestSession_Verify(t *testing.T) {
	env := newTestEnv(t)
	s := env.session(t, directive.DefaultLauncher)

	bare := filepath.Join(env.project, "node_modules", "bare")
	_ = env.fs.MkdirAll(bare, 0o755)
	_ = afero.WriteFile(env.fs, filepath.Join(bare, "package.json"), []byte(`{"name":"bare","version":"1.0.0"}`), 0o644)

	valid := annotate.NewMemBuffer("#!/usr/bin/env npx left-pad@1.3.0\n")
	if _, err := s.Process(context.Background(), "v.js", valid); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		lines []string
		want  State
	}{
		{"no module", []string{"#!/usr/bin/env node"}, StateNoModule},
		{"no annotation", []string{"#!/usr/bin/env npx left-pad"}, StateNoAnnotation},
		{"installing", []string{"#!/usr/bin/env npx left-pad", directive.Installing().String()}, StateInstalling},
		{"failed", []string{"#!/usr/bin/env npx left-pad", directive.Failed("boom").String()}, StateFailed},
		{"invalid", []string{"#!/usr/bin/env npx left-pad", directive.Found("/nowhere/left-pad").String()}, StateInvalidTypings},
		{"missing typings", []string{"#!/usr/bin/env npx bare", directive.Found(bare).String()}, StateMissingTypings},
		{"valid", valid.Lines(), StateValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Verify(context.Background(), tt.lines); got.State != tt.want {
				t.Errorf("Verify() = %+v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_FileLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := env.session(t, directive.DefaultLauncher)
	script := filepath.Join(env.project, "tool.js")
	original := "#!/usr/bin/env npx left-pad@1.3.0\nrequire('left-pad')\n"
	if err := os.WriteFile(script, []byte(original), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := s.ProcessFile(context.Background(), script, false)
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	data, _ := os.ReadFile(script)
	if !strings.Contains(string(data), res.Path) {
		t.Errorf("file not annotated: %q", data)
	}
	if got := s.Touched(); len(got) != 1 || got[0] != script {
		t.Errorf("Touched() = %v", got)
	}

	n, err := s.CloseFile(script)
	if err != nil || n != 2 {
		t.Fatalf("CloseFile() = %d, %v", n, err)
	}
	data, _ = os.ReadFile(script)
	if string(data) != original {
		t.Errorf("file after CloseFile() = %q, want original", data)
	}
	if len(s.Touched()) != 0 {
		t.Error("CloseFile() kept the file as touched")
	}
}

func TestSession_UninstallFile(t *testing.T) {
	env := newTestEnv(t)
	s := env.session(t, directive.DefaultLauncher)
	script := filepath.Join(env.project, "tool.js")
	if err := os.WriteFile(script, []byte("#!/usr/bin/env npx left-pad@1.3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := s.ProcessFile(context.Background(), script, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.UninstallFile(script); err != nil {
		t.Fatalf("UninstallFile() error = %v", err)
	}
	if _, err := os.Stat(res.Path); !os.IsNotExist(err) {
		t.Error("managed install still present")
	}
	data, _ := os.ReadFile(script)
	if strings.Contains(string(data), directive.Marker) {
		t.Errorf("annotation still present: %q", data)
	}
}

func TestPhase_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseChecking, true},
		{PhaseChecking, PhaseInstalling, true},
		{PhaseInstalling, PhaseChecking, true},
		{PhaseChecking, PhaseSynced, true},
		{PhaseInstalling, PhaseFailed, true},
		{PhaseSynced, PhaseChecking, true},
		{PhaseFailed, PhaseChecking, true},
		{PhaseIdle, PhaseSynced, false},
		{PhaseInstalling, PhaseSynced, false},
		{PhaseSynced, PhaseInstalling, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *Request) (Result, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h := Chain(func(context.Context, *Request) (Result, error) {
		order = append(order, "handler")
		return Result{}, nil
	}, mw("outer"), mw("inner"))

	if _, err := h(context.Background(), &Request{}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestState_MarshalText(t *testing.T) {
	b, err := StateMissingTypings.MarshalText()
	if err != nil || string(b) != "missing-typings" {
		t.Errorf("MarshalText() = %q, %v", b, err)
	}
}

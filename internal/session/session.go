// Package session ties the directive parser, the install cache and the
// annotation synchronizer into the flow run for every trigger on a script:
// parse the declared package, validate or install it, then record the
// outcome in the script's annotation line.
package session

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/arciisine/npx-types-plugin/internal/annotate"
	"github.com/arciisine/npx-types-plugin/internal/directive"
	npxerrors "github.com/arciisine/npx-types-plugin/internal/errors"
	"github.com/arciisine/npx-types-plugin/internal/guard"
	"github.com/arciisine/npx-types-plugin/internal/install"
	"github.com/arciisine/npx-types-plugin/internal/logging"
)

// Result is the outcome of processing one buffer.
type Result struct {
	Key     string
	Ref     directive.Ref
	State   State
	Path    string
	Changed bool
}

// Options configures a Session.
type Options struct {
	Cache        *install.Cache
	Parser       *directive.Parser
	Synchronizer *annotate.Synchronizer
	Logger       *logging.Logger
}

// Session is the service object shared by every trigger of a process. It
// owns the per-buffer guard and phase state; install records live in the
// cache.
type Session struct {
	cache  *install.Cache
	parser *directive.Parser
	sync   *annotate.Synchronizer
	fs     afero.Fs
	logger *logging.Logger

	files   guard.Serial[Result]
	handler Handler

	mu       sync.Mutex
	phases   map[string]Phase
	prompted map[string]bool
	touched  map[string]bool
}

// New creates a session.
func New(opts Options) *Session {
	s := &Session{
		cache:    opts.Cache,
		parser:   opts.Parser,
		sync:     opts.Synchronizer,
		fs:       opts.Cache.Fs(),
		logger:   opts.Logger,
		phases:   make(map[string]Phase),
		prompted: make(map[string]bool),
		touched:  make(map[string]bool),
	}
	if s.parser == nil {
		s.parser = directive.NewParser(directive.DefaultLauncher)
	}
	if s.sync == nil {
		s.sync = annotate.NewSynchronizer(annotate.DefaultLine)
	}
	if s.logger == nil {
		s.logger = logging.Global()
	}
	s.handler = Chain(s.process,
		Logged(s.logger),
		RequireCandidate(s.parser),
		Dedupe(&s.files),
	)
	return s
}

// Cache returns the install cache.
func (s *Session) Cache() *install.Cache { return s.cache }

// Process runs the check-and-install flow for buf. Installs that fail are
// recorded in the annotation line and also returned as the error.
func (s *Session) Process(ctx context.Context, key string, buf annotate.Buffer) (Result, error) {
	return s.handler(ctx, &Request{Key: key, Buffer: buf})
}

// Reinstall removes the annotation and forces a fresh install.
func (s *Session) Reinstall(ctx context.Context, key string, buf annotate.Buffer) (Result, error) {
	if ref, ok := s.parser.ModuleReference(buf.Lines()); ok {
		s.cache.Forget(ref)
	}
	cleared, err := s.sync.Clear(buf)
	if err != nil {
		return Result{Key: key}, err
	}
	res, err := s.handler(ctx, &Request{Key: key, Buffer: buf, Force: true})
	res.Changed = res.Changed || cleared
	return res, err
}

// Uninstall removes the managed install of the buffer's package and its
// annotation line.
func (s *Session) Uninstall(key string, buf annotate.Buffer) (Result, error) {
	res := Result{Key: key, State: StateNoModule}
	ref, ok := s.parser.ModuleReference(buf.Lines())
	if !ok {
		return res, nil
	}
	res.Ref = ref
	res.State = StateNoAnnotation

	if err := s.cache.Uninstall(ref); err != nil {
		return res, err
	}
	s.cache.Forget(ref)

	changed, err := s.sync.Clear(buf)
	res.Changed = changed
	s.setPhase(key, PhaseIdle)
	return res, err
}

// Close strips every annotation line from buf, leaving no tooling state in
// the saved file, and forgets the buffer.
func (s *Session) Close(key string, buf annotate.Buffer) (int, error) {
	n, err := s.sync.RemoveAll(buf)
	s.forget(key)
	return n, err
}

// CloseFile is Close for a file that is not loaded in a buffer.
func (s *Session) CloseFile(path string) (int, error) {
	n, err := annotate.RemoveAllFromFile(s.fs, path)
	s.forget(path)
	return n, err
}

// ProcessFile loads path, processes it and saves it when the annotation
// changed.
func (s *Session) ProcessFile(ctx context.Context, path string, force bool) (Result, error) {
	key := absKey(path)
	buf, err := annotate.OpenFile(s.fs, key)
	if err != nil {
		return Result{Key: key}, err
	}

	var res Result
	if force {
		res, err = s.Reinstall(ctx, key, buf)
	} else {
		res, err = s.Process(ctx, key, buf)
	}
	if _, serr := buf.Save(); serr != nil && err == nil {
		err = serr
	}
	return res, err
}

// UninstallFile is Uninstall for a file on disk.
func (s *Session) UninstallFile(path string) (Result, error) {
	key := absKey(path)
	buf, err := annotate.OpenFile(s.fs, key)
	if err != nil {
		return Result{Key: key}, err
	}
	res, err := s.Uninstall(key, buf)
	if _, serr := buf.Save(); serr != nil && err == nil {
		err = serr
	}
	return res, err
}

// Forget drops the per-file state kept for path, for files that were
// deleted or renamed away.
func (s *Session) Forget(path string) {
	s.forget(absKey(path))
}

// Touched returns the files this session annotated.
func (s *Session) Touched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.touched))
	for k := range s.touched {
		out = append(out, k)
	}
	return out
}

// Phase returns the current phase of the buffer under key.
func (s *Session) Phase(key string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phases[key]
}

// ShouldPrompt reports whether a failure for key should be announced. It
// returns true once per failure streak; a successful run re-arms it.
func (s *Session) ShouldPrompt(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompted[key] {
		return false
	}
	s.prompted[key] = true
	return true
}

// Verify derives the state of lines without changing anything.
func (s *Session) Verify(ctx context.Context, lines []string) Status {
	ref, ok := s.parser.ModuleReference(lines)
	if !ok {
		return Status{State: StateNoModule}
	}
	st := Status{Module: ref.Full()}

	_, a, ok := directive.FindAnnotation(lines)
	if !ok {
		st.State = StateNoAnnotation
		return st
	}
	switch a.Kind {
	case directive.KindInstalling:
		st.State = StateInstalling
		return st
	case directive.KindFailed:
		st.State = StateFailed
		st.Message = a.Message
		return st
	case directive.KindUnknown:
		st.State = StateInvalidTypings
		st.Message = a.Message
		return st
	}

	st.Path = a.Path
	dir, valid := s.cache.Validate(ctx, ref, a.Path)
	if !valid {
		st.State = StateInvalidTypings
		return st
	}
	m, err := install.ReadManifest(s.fs, dir)
	if err != nil || !m.HasTypings(s.fs, dir) {
		st.State = StateMissingTypings
		return st
	}
	st.State = StateValid
	return st
}

// process walks the strategies in order: the location recorded this
// session, the path in the annotation, any existing install, and finally a
// fresh install.
func (s *Session) process(ctx context.Context, req *Request) (Result, error) {
	key, buf := req.Key, req.Buffer
	log := s.logger.WithContext(logging.WithFile(ctx, key))
	res := Result{Key: key, State: StateNoModule}

	s.setPhase(key, PhaseChecking)
	lines := buf.Lines()
	ref, ok := s.parser.ModuleReference(lines)
	if !ok {
		changed, err := s.sync.Clear(buf)
		res.Changed = changed
		s.setPhase(key, PhaseIdle)
		return res, err
	}
	res.Ref = ref
	log = log.With("module", ref.Full())

	if !req.Force {
		if path, ok := s.existing(ctx, ref, lines); ok {
			return s.found(key, buf, res, path)
		}
	}

	// A failure recorded this session is shown again rather than retried;
	// Reinstall clears it.
	if rec, ok := s.cache.Lookup(ref); ok && rec.Err != nil && !req.Force {
		return s.failed(key, buf, res, rec.Err)
	}

	s.setPhase(key, PhaseInstalling)
	changed, err := s.sync.Write(buf, directive.Installing())
	if err != nil {
		return res, err
	}
	res.Changed = changed
	s.markTouched(key)

	log.Info("Installing declared package", "force", req.Force)
	path, err := s.cache.Install(ctx, ref, req.Force)
	s.setPhase(key, PhaseChecking)
	if err != nil {
		return s.failed(key, buf, res, err)
	}
	return s.found(key, buf, res, path)
}

func (s *Session) existing(ctx context.Context, ref directive.Ref, lines []string) (string, bool) {
	if rec, ok := s.cache.Lookup(ref); ok && rec.Err == nil && rec.Location != "" {
		if path, ok := s.cache.Validate(ctx, ref, rec.Location); ok {
			return path, true
		}
	}
	if hint, ok := directive.ExtractAnnotationValue(lines); ok {
		if path, ok := s.cache.Validate(ctx, ref, hint); ok {
			return path, true
		}
	}
	return s.cache.Locate(ctx, ref)
}

func (s *Session) found(key string, buf annotate.Buffer, res Result, path string) (Result, error) {
	changed, err := s.sync.Write(buf, directive.Found(path))
	res.Changed = res.Changed || changed
	res.Path = path
	if err != nil {
		s.setPhase(key, PhaseFailed)
		res.State = StateFailed
		return res, err
	}
	res.State = StateValid
	s.setPhase(key, PhaseSynced)
	s.markTouched(key)

	s.mu.Lock()
	delete(s.prompted, key)
	s.mu.Unlock()
	return res, nil
}

func (s *Session) failed(key string, buf annotate.Buffer, res Result, cause error) (Result, error) {
	changed, err := s.sync.Write(buf, directive.Failed(npxerrors.Message(cause)))
	res.Changed = res.Changed || changed
	res.State = StateFailed
	s.setPhase(key, PhaseFailed)
	s.markTouched(key)
	if err != nil {
		return res, err
	}
	return res, cause
}

func (s *Session) setPhase(key string, next Phase) {
	s.mu.Lock()
	prev := s.phases[key]
	s.phases[key] = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	if !prev.CanTransition(next) {
		s.logger.Warn("Unexpected phase transition", "file", key, "from", prev.String(), "to", next.String())
		return
	}
	s.logger.Debug("Phase", "file", key, "from", prev.String(), "to", next.String())
}

func (s *Session) markTouched(key string) {
	s.mu.Lock()
	s.touched[key] = true
	s.mu.Unlock()
}

func (s *Session) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.phases, key)
	delete(s.prompted, key)
	delete(s.touched, key)
}

func absKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

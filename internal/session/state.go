package session

import "fmt"

// State is the annotation state of a buffer, derived from its directive,
// its annotation line and the filesystem. It is never stored.
type State int

const (
	// StateNoModule means the buffer declares no package.
	StateNoModule State = iota
	// StateNoAnnotation means a package is declared but not annotated.
	StateNoAnnotation
	// StateMissingTypings means the annotated package ships no declarations.
	StateMissingTypings
	// StateInvalidTypings means the annotation points at a path that no
	// longer satisfies the declared reference.
	StateInvalidTypings
	// StateInstalling means the placeholder annotation is present.
	StateInstalling
	// StateValid means the annotation points at a valid install.
	StateValid
	// StateFailed means the annotation records a failed install.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoModule:
		return "no-module"
	case StateNoAnnotation:
		return "no-annotation"
	case StateMissingTypings:
		return "missing-typings"
	case StateInvalidTypings:
		return "invalid-typings"
	case StateInstalling:
		return "installing"
	case StateValid:
		return "valid"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name in YAML and JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the derived state of one buffer.
type Status struct {
	State   State  `json:"state" yaml:"state"`
	Module  string `json:"module,omitempty" yaml:"module,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Phase is the position of a buffer in the check-and-install flow.
type Phase int

const (
	// PhaseIdle is a buffer that has not been processed.
	PhaseIdle Phase = iota
	// PhaseChecking is a buffer being validated.
	PhaseChecking
	// PhaseInstalling is a buffer waiting on an install.
	PhaseInstalling
	// PhaseSynced is a buffer whose annotation matches a valid install.
	PhaseSynced
	// PhaseFailed is a buffer whose last install failed.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseInstalling:
		return "installing"
	case PhaseSynced:
		return "synced"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

var transitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseChecking},
	PhaseChecking:   {PhaseInstalling, PhaseSynced, PhaseFailed, PhaseIdle},
	PhaseInstalling: {PhaseChecking, PhaseFailed},
	PhaseSynced:     {PhaseChecking, PhaseIdle},
	PhaseFailed:     {PhaseChecking, PhaseIdle},
}

// CanTransition reports whether moving from p to next is allowed.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

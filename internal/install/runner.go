package install

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Output, when set, also receives stdout and stderr as they are written.
	Output io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner spawns external processes and waits for them to exit.
type Runner interface {
	// Run executes cmd. A non-zero exit is reported through Result.ExitCode
	// with a nil error; the error is reserved for processes that could not
	// be started or were cut short by ctx.
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	if c.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Output)
		cmd.Stderr = io.MultiWriter(&stderr, c.Output)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

// Package sysexec runs local programs behind an interface so callers can be
// tested without a shell.
package sysexec

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// CommandExecutor is one prepared invocation.
type CommandExecutor interface {
	// Run starts the program, waits for it and returns its captured output.
	// A stream redirected with SetStdout or SetStderr is not captured and
	// comes back nil.
	Run() (stdout, stderr []byte, err error)
	SetStdout(w io.Writer)
	SetStderr(w io.Writer)
}

// CommandBuilder prepares invocations. The program is killed if ctx ends
// before it exits.
type CommandBuilder interface {
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// RealCommandBuilder builds commands with exec.CommandContext.
type RealCommandBuilder struct{}

func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

func (*RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	return &realCommand{cmd: exec.CommandContext(ctx, name, args...)}
}

type realCommand struct {
	cmd            *exec.Cmd
	stdout, stderr io.Writer
}

func (r *realCommand) SetStdout(w io.Writer) { r.stdout = w }
func (r *realCommand) SetStderr(w io.Writer) { r.stderr = w }

func (r *realCommand) Run() ([]byte, []byte, error) {
	var stdout, stderr *bytes.Buffer
	r.cmd.Stdout, stdout = capture(r.stdout)
	r.cmd.Stderr, stderr = capture(r.stderr)
	err := r.cmd.Run()
	return captured(stdout), captured(stderr), err
}

// capture returns w if set, otherwise a fresh buffer for the stream. The
// returned buffer is nil when w is used.
func capture(w io.Writer) (io.Writer, *bytes.Buffer) {
	if w != nil {
		return w, nil
	}
	buf := new(bytes.Buffer)
	return buf, buf
}

func captured(buf *bytes.Buffer) []byte {
	if buf == nil {
		return nil
	}
	return buf.Bytes()
}

// MockCommandExecutor replays canned output. Redirected streams receive
// their output on Run instead of it being returned.
type MockCommandExecutor struct {
	Stdout, Stderr []byte
	Err            error

	StdoutWriter io.Writer
	StderrWriter io.Writer
	RunCalled    bool
}

func (m *MockCommandExecutor) SetStdout(w io.Writer) { m.StdoutWriter = w }
func (m *MockCommandExecutor) SetStderr(w io.Writer) { m.StderrWriter = w }

func (m *MockCommandExecutor) Run() ([]byte, []byte, error) {
	m.RunCalled = true
	stdout, stderr := m.Stdout, m.Stderr
	if m.StdoutWriter != nil {
		m.StdoutWriter.Write(stdout)
		stdout = nil
	}
	if m.StderrWriter != nil {
		m.StderrWriter.Write(stderr)
		stderr = nil
	}
	return stdout, stderr, m.Err
}

// MockCommandBuilder records what was built. The executor it hands out comes
// from ExecutorFactory if set, then NextExecutor (used once), and otherwise
// is an empty MockCommandExecutor that succeeds silently.
type MockCommandBuilder struct {
	Commands        []MockBuiltCommand
	NextExecutor    *MockCommandExecutor
	ExecutorFactory func(name string, args []string) *MockCommandExecutor
}

// MockBuiltCommand is one recorded BuildCommand call.
type MockBuiltCommand struct {
	Name string
	Args []string
}

func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

func (b *MockCommandBuilder) BuildCommand(_ context.Context, name string, args ...string) CommandExecutor {
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})
	switch {
	case b.ExecutorFactory != nil:
		return b.ExecutorFactory(name, args)
	case b.NextExecutor != nil:
		e := b.NextExecutor
		b.NextExecutor = nil
		return e
	}
	return &MockCommandExecutor{}
}

// LastCommand returns the most recent call, or nil before the first.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}

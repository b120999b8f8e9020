// Package debugger exposes the native debugger as a capability: a session
// that can create a target, plant breakpoints, launch the target and observe
// its stops. Sessions own process-global debugger state and must never be
// shared between goroutines or reused after Close; the verification
// algorithm stays agnostic of which concrete debugger backs the interface.
package debugger

import "fmt"

// State describes what a launched process is currently doing.
type State int

const (
	// StateInvalid means there is no usable process.
	StateInvalid State = iota
	// StateRunning means the process is executing.
	StateRunning
	// StateStopped means the process is stopped and can be inspected.
	StateStopped
	// StateExited means the process terminated.
	StateExited
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	default:
		return "invalid"
	}
}

// StopReason describes why a process stopped.
type StopReason int

const (
	// StopUnknown is any stop the debugger did not attribute.
	StopUnknown StopReason = iota
	// StopBreakpoint means a breakpoint fired.
	StopBreakpoint
	// StopOther is a signal, watchpoint or any other attributed stop.
	StopOther
)

// Session is one debugger instance. One session drives at most one target.
type Session interface {
	// CreateTarget binds the session to the binary at path using the
	// platform default architecture.
	CreateTarget(path string) (Target, error)
	// Close releases every resource the session acquired. It must be
	// safe to call on every exit path, including after errors.
	Close() error
}

// Target is a binary loaded into a session.
type Target interface {
	// Valid reports whether the target can be used.
	Valid() bool
	// SetBreakpoint requests a breakpoint at (file, line). A rejected
	// request returns an error and no breakpoint.
	SetBreakpoint(file string, line int) (Breakpoint, error)
	// Launch starts the target with no arguments in the given working
	// directory and returns once the process first stops or exits.
	Launch(wd string) (Process, error)
	// DeleteAllBreakpoints removes every breakpoint from the target.
	DeleteAllBreakpoints() error
	// Detach releases the target from the session.
	Detach() error
}

// Breakpoint is one requested breakpoint.
type Breakpoint interface {
	// Valid reports whether the debugger accepted the request.
	Valid() bool
	// Line is the requested source line.
	Line() int
	// HitCount is the cumulative number of times the breakpoint fired.
	HitCount() (int, error)
}

// Process is a launched instance of a target.
type Process interface {
	// Valid reports whether the process handle is usable.
	Valid() bool
	// State returns the current process state.
	State() State
	// StopReason returns why the process is stopped. Only meaningful in
	// StateStopped.
	StopReason() (StopReason, error)
	// FrameLine returns the resolved (file, line) of the top stack frame.
	FrameLine() (string, int, error)
	// Continue resumes a stopped process and returns once it stops again
	// or exits.
	Continue() error
	// Kill terminates the process.
	Kill() error
}

// ProtocolError is an error reported by the debugger's machine interface.
type ProtocolError struct {
	// Context describes the operation that failed.
	Context string
	// Cmd is the MI command that triggered the error.
	Cmd string
	// Msg is the message carried by the error record, if any.
	Msg string
}

func (err *ProtocolError) Error() string {
	cmd := err.Cmd
	if len(cmd) > 40 {
		cmd = cmd[:40] + "..."
	}
	if err.Msg == "" {
		return fmt.Sprintf("unsupported command %q during %s", cmd, err.Context)
	}
	return fmt.Sprintf("protocol error %q during %s for command %q", err.Msg, err.Context, cmd)
}

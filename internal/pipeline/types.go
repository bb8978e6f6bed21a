package pipeline

import "fmt"

// State is the lifecycle state of a Pipeline.
type State int32

const (
	// StateStarting is the initial state, before Execute is called.
	StateStarting State = iota
	// StateExecuting means Execute succeeded and children may still be running.
	StateExecuting
	// StateExited means every child ran and the last one exited normally.
	StateExited
	// StateException means the last child was terminated by a signal.
	StateException
	// StateKilled means Kill was called and the pipeline was torn down.
	StateKilled
	// StateExpired means the pipeline's own timeout fired.
	StateExpired
	// StateError means a library-level failure occurred (spawn, select, wait).
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateExecuting:
		return "executing"
	case StateExited:
		return "exited"
	case StateException:
		return "exception"
	case StateKilled:
		return "killed"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// ExitException classifies the signal that terminated a command, when
// State is StateException.
type ExitException int32

const (
	// ExitExceptionNone applies when the command was not signaled.
	ExitExceptionNone ExitException = iota
	// ExitExceptionFault covers SIGSEGV and SIGBUS.
	ExitExceptionFault
	// ExitExceptionNumerical covers SIGFPE.
	ExitExceptionNumerical
	// ExitExceptionIllegal covers SIGILL.
	ExitExceptionIllegal
	// ExitExceptionInterrupt covers SIGINT.
	ExitExceptionInterrupt
	// ExitExceptionOther covers every other terminating signal.
	ExitExceptionOther
)

// String returns a human-readable exception class name.
func (e ExitException) String() string {
	switch e {
	case ExitExceptionNone:
		return "none"
	case ExitExceptionFault:
		return "fault"
	case ExitExceptionNumerical:
		return "numerical"
	case ExitExceptionIllegal:
		return "illegal"
	case ExitExceptionInterrupt:
		return "interrupt"
	case ExitExceptionOther:
		return "other"
	default:
		return fmt.Sprintf("unknown(%d)", int32(e))
	}
}

// PipeMask selects which output streams WaitForData should report.
type PipeMask int

const (
	// PipeStdout selects the last command's stdout.
	PipeStdout PipeMask = 1 << iota
	// PipeStderr selects the shared stderr stream.
	PipeStderr
)

// DrainResult is the outcome of one WaitForData call.
type DrainResult struct {
	// Pipe is 0 (nothing more will arrive), PipeStdout, or PipeStderr.
	Pipe PipeMask
	// Data is a buffer the caller must consume before the next call;
	// it aliases the Pipeline's internal scratch buffer and is only
	// valid when Pipe != 0.
	Data []byte
	// TimedOut is true only when the caller's own userTimeout expired
	// before the pipeline's timeout or any data; the pipeline is still
	// alive in that case.
	TimedOut bool
}

// StageOutcome is one command's classification within a finished
// Pipeline, keyed by its position in the command list.
type StageOutcome struct {
	Command       []string
	PID           int
	State         State
	ExitException ExitException
	ExitCode      int
	ExitValue     int
}

// outcome is the internal tagged-variant classification of a finished
// run, collapsed at the end of WaitForExit into the legacy
// State/ExitException/ExitCode/ExitValue/ErrorMessage projection that
// State() and the other accessors expose, per the compatibility-projection design
// note.
type outcome struct {
	kind     outcomeKind
	value    int    // ExitValue, for kindExited
	class    ExitException
	rawCode  int    // raw wait status, for kindExited/kindSignaled
	message  string // for kindLibraryError
}

type outcomeKind int

const (
	kindNone outcomeKind = iota
	kindExited
	kindSignaled
	kindKilled
	kindExpired
	kindLibraryError
)

package pipeline

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const scratchBufferSize = 1024

// Pipeline is a chain of commands connected stdout-to-stdin, run as a
// single unit. See the package doc comment for a worked example.
//
// Pipeline is not safe for concurrent use by multiple goroutines; it
// is driven by one goroutine calling Execute, WaitForData,
// WaitForExit, and Kill in sequence.
type Pipeline struct {
	mu       sync.Mutex
	commands [][]string
	workDir  string
	timeout  time.Duration

	state atomic.Int32

	runID string

	startTime   time.Time
	timeoutTime time.Time

	cmds []*exec.Cmd
	pids []int

	stages []StageOutcome

	drain *drainState

	result   outcome
	errorMsg string
}

// New creates a Pipeline in StateStarting.
func New() *Pipeline {
	p := &Pipeline{}
	p.state.Store(int32(StateStarting))
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// ExitException returns the terminating signal class of the last
// command, valid once State is StateException.
func (p *Pipeline) ExitException() ExitException {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result.class
}

// ExitCode returns the raw wait status of the last command, valid once
// State is StateExited or StateException.
func (p *Pipeline) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result.rawCode
}

// ExitValue returns the last command's normalized exit value (0-255),
// valid once State is StateExited.
func (p *Pipeline) ExitValue() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result.value
}

// ErrorString returns the library error message, or "" unless State
// is StateError.
func (p *Pipeline) ErrorString() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != StateError {
		return ""
	}
	return p.errorMsg
}

// RunID returns the UUID generated for the most recent successful
// Execute call, or "" if Execute has never succeeded.
func (p *Pipeline) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

// StageOutcomes returns one entry per configured command. Execute
// fills in each entry's command and PID; the exit classification
// fields are set only after WaitForExit returns true.
func (p *Pipeline) StageOutcomes() []StageOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StageOutcome, len(p.stages))
	copy(out, p.stages)
	return out
}

// SetCommand replaces the whole command list. A nil argument clears
// it. Every argv is deep-copied.
func (p *Pipeline) SetCommand(cmds [][]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateExecuting {
		return nil
	}
	if cmds == nil {
		p.commands = nil
		return nil
	}
	copied := make([][]string, 0, len(cmds))
	for _, argv := range cmds {
		if len(argv) == 0 {
			return ErrEmptyArgv
		}
		copied = append(copied, append([]string(nil), argv...))
	}
	p.commands = copied
	return nil
}

// AddCommand appends one command to the pipeline. argv must be
// non-empty; it is deep-copied.
func (p *Pipeline) AddCommand(argv []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateExecuting {
		return nil
	}
	if len(argv) == 0 {
		return ErrEmptyArgv
	}
	p.commands = append(p.commands, append([]string(nil), argv...))
	return nil
}

// SetTimeout sets the pipeline-wide wall-clock deadline, measured from
// Execute. A negative value is clamped to zero ("no timeout").
func (p *Pipeline) SetTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateExecuting {
		return
	}
	if d < 0 {
		d = 0
	}
	p.timeout = d
}

// SetWorkingDirectory sets the directory each child chdirs into
// before exec. An empty string clears it.
func (p *Pipeline) SetWorkingDirectory(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateExecuting {
		return
	}
	p.workDir = dir
}

// GetOption is reserved for ABI evolution; it always returns
// (nil, false) today.
func (p *Pipeline) GetOption(string) (any, bool) { return nil, false }

// SetOption is reserved for ABI evolution; it is a no-op today.
func (p *Pipeline) SetOption(string, any) {}

// Close releases every OS resource owned by the Pipeline. If it is
// still executing, Close first calls WaitForExit, discarding any
// remaining output.
func (p *Pipeline) Close() error {
	if p.State() == StateExecuting {
		for {
			done, err := p.WaitForExit(nil)
			if err != nil || done {
				break
			}
		}
	}
	return nil
}

func newRunID() string {
	return uuid.NewString()
}

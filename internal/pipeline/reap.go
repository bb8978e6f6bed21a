package pipeline

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// WaitForExit drains any remaining output, reaps every child, and
// drives State to its terminal value. It returns (false, nil) if a
// user timeout passed to it expired first — the pipeline is still
// alive and WaitForExit may be called again. It returns (true, nil)
// immediately, as a no-op, if the pipeline was not executing.
func (p *Pipeline) WaitForExit(userTimeout *time.Duration) (bool, error) {
	if p.State() != StateExecuting {
		return true, nil
	}

	res, err := p.WaitForData(0, userTimeout)
	if err != nil {
		return false, err
	}
	if res.TimedOut {
		return false, nil
	}

	p.mu.Lock()
	cmds := p.cmds
	p.mu.Unlock()

	var waitErr error
	for i, c := range cmds {
		werr := c.Wait()
		if werr != nil {
			if _, isExit := werr.(*exec.ExitError); !isExit {
				waitErr = werr
			}
		}

		ws, ok := waitStatusOf(c)
		if !ok {
			continue
		}
		state, class, value := classifyWaitStatus(ws)
		p.mu.Lock()
		p.stages[i] = StageOutcome{
			Command:       p.stages[i].Command,
			PID:           p.stages[i].PID,
			State:         state,
			ExitException: class,
			ExitCode:      int(ws),
			ExitValue:     value,
		}
		p.mu.Unlock()
	}

	if waitErr != nil {
		p.fail(fmt.Sprintf("wait for child: %v", waitErr))
		p.cleanup()
		return true, nil
	}

	p.mu.Lock()
	alreadyTerminal := p.result.kind == kindKilled || p.result.kind == kindExpired
	var final outcome
	var finalState State
	if alreadyTerminal {
		final = p.result
		if final.kind == kindKilled {
			finalState = StateKilled
		} else {
			finalState = StateExpired
		}
	} else {
		// Execute rejects an empty command list, so p.stages is
		// always non-empty once a run reaches this point.
		last := p.stages[len(p.stages)-1]
		final = outcome{
			value:   last.ExitValue,
			class:   last.ExitException,
			rawCode: last.ExitCode,
		}
		switch last.State {
		case StateExited:
			final.kind = kindExited
			finalState = StateExited
		case StateException:
			final.kind = kindSignaled
			finalState = StateException
		default:
			final.kind = kindLibraryError
			final.message = "Error getting child return code."
			finalState = StateError
			p.errorMsg = final.message
		}
	}
	p.result = final
	p.mu.Unlock()

	p.cleanup()
	p.state.Store(int32(finalState))
	return true, nil
}

// waitStatusOf extracts the raw wait status from a command that has
// already been waited on. Linux, macOS, and the other Unix targets
// this module supports all expose syscall.WaitStatus from
// ProcessState.Sys().
func waitStatusOf(c *exec.Cmd) (syscall.WaitStatus, bool) {
	if c.ProcessState == nil {
		return 0, false
	}
	ws, ok := c.ProcessState.Sys().(syscall.WaitStatus)
	return ws, ok
}

// classifyWaitStatus maps a raw wait status to the
// State/ExitException/ExitValue triple the rest of the package
// exposes.
func classifyWaitStatus(ws syscall.WaitStatus) (state State, class ExitException, value int) {
	switch {
	case ws.Exited():
		return StateExited, ExitExceptionNone, ws.ExitStatus()
	case ws.Signaled():
		switch ws.Signal() {
		case syscall.SIGSEGV, syscall.SIGBUS:
			class = ExitExceptionFault
		case syscall.SIGFPE:
			class = ExitExceptionNumerical
		case syscall.SIGILL:
			class = ExitExceptionIllegal
		case syscall.SIGINT:
			class = ExitExceptionInterrupt
		default:
			class = ExitExceptionOther
		}
		return StateException, class, 0
	default:
		return StateError, ExitExceptionNone, 0
	}
}

// Kill sends SIGKILL to every child that was forked. It does not
// reap them; the next WaitForExit observes the resulting pipe
// closures and completes the transition to StateKilled.
func (p *Pipeline) Kill() error {
	if p.State() != StateExecuting {
		return nil
	}
	return p.killLocked()
}

// killLocked implements Kill, and is also used internally when the
// pipeline's own timeout expires.
func (p *Pipeline) killLocked() error {
	p.mu.Lock()
	cmds := p.cmds
	if p.result.kind != kindExpired {
		p.result = outcome{kind: kindKilled}
	}
	p.mu.Unlock()

	var firstErr error
	for _, c := range cmds {
		if c.Process == nil {
			continue
		}
		if err := c.Process.Kill(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// cleanup releases descriptors and restores invariants once a run is
// terminal. The Go runtime reaps children through a per-process
// wait4 call rather than a shared SIGCHLD handler, so there is no
// process-wide signal disposition to save and restore here — see
// DESIGN.md.
func (p *Pipeline) cleanup() {
	p.mu.Lock()
	d := p.drain
	p.mu.Unlock()
	if d != nil {
		d.stdoutOpen = false
		d.stderrOpen = false
		d.termOpen = false
		d.abandon()
	}
}

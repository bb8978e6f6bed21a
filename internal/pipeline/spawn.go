package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Execute forks every configured command, wiring command i's stdout
// to command i+1's stdin. Calling Execute on an already-executing
// Pipeline is a silent no-op.
//
// On success State becomes StateExecuting and exactly three streams
// (stdout of the last command, the shared stderr, and the shared TERM
// watcher) are open for WaitForData. On failure State becomes
// StateError, ErrorString explains why, and no child is left running.
func (p *Pipeline) Execute() error {
	p.mu.Lock()
	if p.State() == StateExecuting {
		p.mu.Unlock()
		return nil
	}
	commands := make([][]string, len(p.commands))
	copy(commands, p.commands)
	workDir := p.workDir
	p.errorMsg = ""
	p.result = outcome{}
	p.stages = nil
	p.mu.Unlock()

	if len(commands) == 0 {
		p.fail(ErrNoCommands.Error())
		return ErrNoCommands
	}

	runID := newRunID()

	cmds := make([]*exec.Cmd, len(commands))
	for i, argv := range commands {
		c := exec.Command(argv[0], argv[1:]...)
		c.Dir = workDir
		cmds[i] = c
	}

	// Shared descriptors: a single stderr write end and a single TERM
	// write end, attached to every child.
	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		p.fail(fmt.Sprintf("create stderr pipe: %v", err))
		return err
	}
	termRead, termWrite, err := os.Pipe()
	if err != nil {
		_ = stderrRead.Close()
		_ = stderrWrite.Close()
		p.fail(fmt.Sprintf("create term pipe: %v", err))
		return err
	}

	for _, c := range cmds {
		c.Stderr = stderrWrite
		c.ExtraFiles = []*os.File{termWrite}
	}

	if len(cmds) > 0 {
		cmds[0].Stdin = os.Stdin
	}

	// Wire command i's stdout directly into command i+1's stdin; only
	// the last command's stdout is captured by the pipeline itself.
	var lastStdout *os.File
	for i := 0; i < len(cmds)-1; i++ {
		r, werr := cmds[i].StdoutPipe()
		if werr != nil {
			closeAll(stderrRead, stderrWrite, termRead, termWrite)
			killStarted(cmds[:i])
			p.fail(fmt.Sprintf("create stdout pipe for stage %d: %v", i, werr))
			return werr
		}
		cmds[i+1].Stdin = r
	}

	pids := make([]int, len(cmds))
	for i, c := range cmds {
		if i == len(cmds)-1 {
			r, werr := c.StdoutPipe()
			if werr != nil {
				closeAll(stderrRead, stderrWrite, termRead, termWrite)
				killStarted(cmds[:i])
				p.fail(fmt.Sprintf("create stdout pipe for stage %d: %v", i, werr))
				return werr
			}
			lastStdout = r.(*os.File)
		}

		if werr := c.Start(); werr != nil {
			closeAll(stderrRead, stderrWrite, termRead, termWrite)
			killStarted(cmds[:i])
			p.fail(fmt.Sprintf("stage %d (%s): %v", i, c.Args[0], werr))
			return werr
		}
		pids[i] = c.Process.Pid
	}

	// Drop the parent's copies of the shared write ends; each child
	// holds its own duplicate, so these pipes now EOF only once every
	// child holding a copy has exited.
	_ = stderrWrite.Close()
	_ = termWrite.Close()

	p.mu.Lock()
	p.runID = runID
	p.cmds = cmds
	p.pids = pids
	p.startTime = time.Now()
	p.timeoutTime = time.Time{}
	p.stages = make([]StageOutcome, len(cmds))
	for i, argv := range commands {
		p.stages[i] = StageOutcome{Command: argv, PID: pids[i]}
	}
	p.mu.Unlock()

	d := newDrainState()
	p.drain = d
	go runDataReader(lastStdout, d.stdoutCh, false, d.stop)
	go runDataReader(stderrRead, d.stderrCh, true, d.stop)
	go runTermReader(termRead, d.termCh, d.stop)

	p.state.Store(int32(StateExecuting))
	return nil
}

// fail transitions the Pipeline to StateError with msg, without
// overwriting an earlier error message.
func (p *Pipeline) fail(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateError && p.errorMsg != "" {
		return
	}
	p.errorMsg = msg
	p.result = outcome{kind: kindLibraryError, message: msg}
	p.state.Store(int32(StateError))
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// killStarted kills every child that was already forked on a failure
// path partway through Execute, so none is left running.
func killStarted(cmds []*exec.Cmd) {
	for _, c := range cmds {
		if c.Process != nil {
			_ = c.Process.Kill()
			_, _ = c.Process.Wait()
		}
	}
}

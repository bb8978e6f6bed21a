package pipeline

import (
	"os"
	"sync"
	"time"
)

// chunk is one buffer's worth of output from a background reader
// goroutine. An empty, eof=true chunk marks that stream's EOF.
type chunk struct {
	data []byte
	eof  bool
}

// drainState holds everything WaitForData needs to multiplex the
// three output streams without blocking on more than the effective
// deadline. Each reader goroutine owns exactly one of the three
// streams and is the only reader of its underlying *os.File,
// satisfying the "exactly one waiter per descriptor" requirement.
type drainState struct {
	stdoutCh chan chunk
	stderrCh chan chunk
	termCh   chan struct{}

	stdoutOpen bool
	stderrOpen bool
	termOpen   bool

	scratch [scratchBufferSize]byte

	// stop lets WaitForExit and the pipeline-timeout path of
	// WaitForData release the reader goroutines even
	// if nobody is left calling WaitForData to consume their
	// channels, so a pipeline that is killed or times out never
	// leaks a goroutine blocked on a send nobody will receive.
	stop     chan struct{}
	stopOnce sync.Once
}

func newDrainState() *drainState {
	return &drainState{
		stdoutCh:   make(chan chunk),
		stderrCh:   make(chan chunk),
		termCh:     make(chan struct{}),
		stdoutOpen: true,
		stderrOpen: true,
		termOpen:   true,
		stop:       make(chan struct{}),
	}
}

// abandon releases every reader goroutine still blocked on a send.
// Safe to call more than once and from either WaitForData's timeout
// path or Close's cleanup path.
func (d *drainState) abandon() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// openCount returns how many of the three streams are not yet EOF'd,
// the Go expression of the pipeline's open-pipe counter invariant.
func (d *drainState) openCount() int {
	n := 0
	if d.stdoutOpen {
		n++
	}
	if d.stderrOpen {
		n++
	}
	if d.termOpen {
		n++
	}
	return n
}

// runDataReader reads f in scratchBufferSize chunks and publishes
// them on ch until EOF, then sends a final eof chunk. The blocking
// read doubles as the wait for readiness, so there is no separate
// poll step, and the Go runtime retries a read interrupted by a
// signal internally — no EINTR ever escapes to this loop.
//
// closeOnEOF controls whether this goroutine closes f once it sees
// EOF. The last command's stdout pipe is owned by its *exec.Cmd
// (via StdoutPipe), which closes it itself inside Wait; closing it
// here too would race a double-close error into that Wait call, so
// callers pass false for it. The shared stderr pipe has no such
// owner and must be closed here.
func runDataReader(f *os.File, ch chan chunk, closeOnEOF bool, stop <-chan struct{}) {
	buf := make([]byte, scratchBufferSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case ch <- chunk{data: data}:
			case <-stop:
				if closeOnEOF {
					_ = f.Close()
				}
				return
			}
		}
		if err != nil {
			select {
			case ch <- chunk{eof: true}:
			case <-stop:
			}
			if closeOnEOF {
				_ = f.Close()
			}
			return
		}
	}
}

// runTermReader watches the TERM pipe for EOF. Per contract it never
// carries data; any stray bytes are discarded. The TERM pipe's read
// end has no owner but this goroutine, so it always closes f.
func runTermReader(f *os.File, done chan struct{}, stop <-chan struct{}) {
	buf := make([]byte, scratchBufferSize)
	for {
		n, err := f.Read(buf)
		if n == 0 && err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
			_ = f.Close()
			return
		}
		select {
		case <-stop:
			_ = f.Close()
			return
		default:
		}
	}
}

// WaitForData drains at most one buffer from one of the streams
// selected by mask, or returns a zero DrainResult when nothing more
// will arrive.
func (p *Pipeline) WaitForData(mask PipeMask, userTimeout *time.Duration) (DrainResult, error) {
	if p.State() != StateExecuting {
		return DrainResult{}, nil
	}
	d := p.drain

	var userDeadline time.Time
	haveUserDeadline := userTimeout != nil
	userStart := time.Now()
	if haveUserDeadline {
		userDeadline = userStart.Add(*userTimeout)
	}

	effectiveDeadline, pipelineChosen := p.effectiveDeadline(haveUserDeadline, userDeadline)

	for d.openCount() > 0 {
		var timer *time.Timer
		var timerC <-chan time.Time
		if !effectiveDeadline.IsZero() {
			remaining := time.Until(effectiveDeadline)
			if remaining <= 0 {
				return p.finishDrainTimeout(pipelineChosen, haveUserDeadline, userTimeout, userStart)
			}
			timer = time.NewTimer(remaining)
			timerC = timer.C
		}

		var res DrainResult
		var gotData bool

		select {
		case c := <-d.stdoutCh:
			res, gotData = p.handleChunk(PipeStdout, c, mask, &d.stdoutOpen)
		case c := <-d.stderrCh:
			res, gotData = p.handleChunk(PipeStderr, c, mask, &d.stderrOpen)
		case <-d.termCh:
			d.termOpen = false
			d.termCh = nil // never select a closed channel again
		case <-timerC:
			if timer != nil {
				timer.Stop()
			}
			return p.finishDrainTimeout(pipelineChosen, haveUserDeadline, userTimeout, userStart)
		}

		if timer != nil {
			timer.Stop()
		}

		if gotData {
			p.accountUserTimeout(haveUserDeadline, userTimeout, userStart)
			return res, nil
		}
	}

	p.accountUserTimeout(haveUserDeadline, userTimeout, userStart)
	return DrainResult{}, nil
}

// handleChunk applies the per-stream rules: a stream not requested by
// mask is drained but discarded; EOF flips the open flag.
func (p *Pipeline) handleChunk(which PipeMask, c chunk, mask PipeMask, open *bool) (DrainResult, bool) {
	if c.eof {
		*open = false
		return DrainResult{}, false
	}
	if mask&which == 0 {
		return DrainResult{}, false
	}
	d := p.drain
	n := copy(d.scratch[:], c.data)
	return DrainResult{Pipe: which, Data: d.scratch[:n]}, true
}

// effectiveDeadline computes the earlier of the pipeline's own
// deadline (lazily resolved on first use) and the caller's user
// deadline, and reports which one was chosen.
func (p *Pipeline) effectiveDeadline(haveUser bool, userDeadline time.Time) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pipelineDeadline time.Time
	havePipeline := p.timeout > 0
	if havePipeline {
		if p.timeoutTime.IsZero() {
			p.timeoutTime = p.startTime.Add(p.timeout)
		}
		pipelineDeadline = p.timeoutTime
	}

	switch {
	case havePipeline && haveUser:
		if pipelineDeadline.Before(userDeadline) {
			return pipelineDeadline, true
		}
		return userDeadline, false
	case havePipeline:
		return pipelineDeadline, true
	case haveUser:
		return userDeadline, false
	default:
		return time.Time{}, true
	}
}

// finishDrainTimeout accounts for the elapsed time against the
// caller's timeout variable, and either reports TimedOut (user
// deadline expired) or kills the children and expires the pipeline
// (pipeline deadline expired).
func (p *Pipeline) finishDrainTimeout(pipelineChosen, haveUserDeadline bool, userTimeout *time.Duration, userStart time.Time) (DrainResult, error) {
	p.accountUserTimeout(haveUserDeadline, userTimeout, userStart)

	if !pipelineChosen {
		return DrainResult{TimedOut: true}, nil
	}

	p.mu.Lock()
	p.result = outcome{kind: kindExpired}
	p.mu.Unlock()
	_ = p.killLocked()
	p.forceDrainClosed()
	return DrainResult{}, nil
}

func (p *Pipeline) accountUserTimeout(have bool, userTimeout *time.Duration, start time.Time) {
	if !have {
		return
	}
	elapsed := time.Since(start)
	remaining := *userTimeout - elapsed
	if remaining < 0 {
		remaining = 0
	}
	*userTimeout = remaining
}

// forceDrainClosed marks every stream closed, used when the drain
// loop gives up early (pipeline timeout or select-equivalent error).
func (p *Pipeline) forceDrainClosed() {
	d := p.drain
	d.stdoutOpen = false
	d.stderrOpen = false
	d.termOpen = false
	d.abandon()
}

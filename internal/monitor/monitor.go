package monitor

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/pipexec/internal/pipeline"
)

// pollInterval is how often Watch redraws the dashboard while waiting
// for the next chunk of output.
const pollInterval = 150 * time.Millisecond

// Dashboard is a live, single-screen view of a running pipeline.
type Dashboard struct {
	screen tcell.Screen
}

// New allocates a terminal screen for the dashboard. Callers must call
// Close when done.
func New() (*Dashboard, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()
	return &Dashboard{screen: screen}, nil
}

// Close tears down the terminal screen.
func (d *Dashboard) Close() {
	d.screen.Fini()
}

// Watch drives p to completion, redrawing a per-stage status table
// every pollInterval or whenever new output arrives, until the
// pipeline reaches a terminal state. Pressing 'q' or Ctrl-C abandons
// the dashboard (but not the pipeline; call p.Kill separately).
func (d *Dashboard) Watch(p *pipeline.Pipeline) error {
	bytes := make(map[int]int)
	quit := make(chan struct{})
	go d.watchKeys(quit)

	for p.State() == pipeline.StateExecuting {
		select {
		case <-quit:
			return nil
		default:
		}

		timeout := pollInterval
		res, err := p.WaitForData(pipeline.PipeStdout|pipeline.PipeStderr, &timeout)
		if err != nil {
			return err
		}
		if res.Pipe != 0 {
			bytes[int(res.Pipe)] += len(res.Data)
		}
		d.draw(p, bytes)
		if res.Pipe == 0 && !res.TimedOut {
			// Every stream is closed (or the pipeline timeout fired):
			// nothing more will arrive, so go on to reap.
			break
		}
	}

	if _, err := p.WaitForExit(nil); err != nil {
		return err
	}
	d.draw(p, bytes)
	return nil
}

func (d *Dashboard) watchKeys(quit chan struct{}) {
	for {
		ev := d.screen.PollEvent()
		switch e := ev.(type) {
		case *tcell.EventKey:
			if e.Rune() == 'q' || e.Key() == tcell.KeyCtrlC || e.Key() == tcell.KeyEscape {
				close(quit)
				return
			}
		case nil:
			return
		}
	}
}

func (d *Dashboard) draw(p *pipeline.Pipeline, bytes map[int]int) {
	d.screen.Clear()
	stages := p.StageOutcomes()

	title := fmt.Sprintf("pipexec run %s", p.RunID())
	drawText(d.screen, 0, 0, tcell.StyleDefault.Bold(true), title)

	for i, s := range stages {
		row := i + 2
		color := stageColor(p.State(), s.State)
		style := tcell.StyleDefault.Foreground(color)
		line := fmt.Sprintf("[%d] pid=%-7d %-10s %s", i, s.PID, stageLabel(p.State(), s.State), joinArgv(s.Command))
		drawText(d.screen, 0, row, style, line)
	}

	d.screen.Show()
}

// stageColor blends from a running amber to a terminal color (green
// for a stage in StateExited, whatever its exit value; red otherwise)
// using go-colorful.
func stageColor(pipelineState pipeline.State, stageState pipeline.State) tcell.Color {
	running, _ := colorful.Hex("#d9a83b")
	done, _ := colorful.Hex("#2bb673")
	failed, _ := colorful.Hex("#c0392b")

	if pipelineState == pipeline.StateExecuting {
		r, g, b := running.RGB255()
		return tcell.NewRGBColor(int32(r), int32(g), int32(b))
	}

	target := done
	if stageState != pipeline.StateExited {
		target = failed
	}
	blended := running.BlendLuv(target, 1.0)
	r, g, b := blended.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

func stageLabel(pipelineState, stageState pipeline.State) string {
	if pipelineState == pipeline.StateExecuting {
		return "running"
	}
	return stageState.String()
}

func joinArgv(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func drawText(screen tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range []rune(text) {
		screen.SetContent(x+i, y, r, nil, style)
	}
}

package report

import (
	"encoding/json"
	"io"

	"github.com/dshills/pipexec/internal/pipeline"
)

// Report is the JSON-stable view of a finished Pipeline.
type Report struct {
	RunID     string  `json:"run_id"`
	State     string  `json:"state"`
	ExitValue int     `json:"exit_value,omitempty"`
	Error     string  `json:"error,omitempty"`
	Stages    []Stage `json:"stages"`
}

// Stage is one command's outcome within a Report.
type Stage struct {
	Command   []string `json:"command"`
	PID       int      `json:"pid"`
	State     string   `json:"state"`
	Exception string   `json:"exception,omitempty"`
	ExitCode  int      `json:"exit_code"`
	ExitValue int      `json:"exit_value"`
}

// From builds a Report from a Pipeline that has already reached a
// terminal state (WaitForExit has returned true).
func From(p *pipeline.Pipeline) Report {
	rep := Report{
		RunID:     p.RunID(),
		State:     p.State().String(),
		ExitValue: p.ExitValue(),
		Error:     p.ErrorString(),
	}
	for _, s := range p.StageOutcomes() {
		rep.Stages = append(rep.Stages, Stage{
			Command:   s.Command,
			PID:       s.PID,
			State:     s.State.String(),
			Exception: s.ExitException.String(),
			ExitCode:  s.ExitCode,
			ExitValue: s.ExitValue,
		})
	}
	return rep
}

// Write encodes rep as indented JSON, the format cmd/pipexec's -json
// flag emits.
func Write(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dshills/pipexec/internal/pipeline"
)

func TestFromAndWrite(t *testing.T) {
	p := pipeline.New()
	_ = p.AddCommand([]string{"true"})
	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	for {
		res, err := p.WaitForData(pipeline.PipeStdout|pipeline.PipeStderr, nil)
		if err != nil {
			t.Fatalf("WaitForData: %v", err)
		}
		if res.Pipe == 0 {
			break
		}
	}
	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	rep := From(p)
	if rep.RunID == "" {
		t.Error("expected a non-empty run ID")
	}
	if rep.State != "exited" {
		t.Errorf("expected state %q, got %q", "exited", rep.State)
	}
	if len(rep.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(rep.Stages))
	}

	var buf bytes.Buffer
	if err := Write(&buf, rep); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.RunID != rep.RunID {
		t.Errorf("round-trip mismatch: got run ID %q, want %q", decoded.RunID, rep.RunID)
	}
}

package pipeline

import (
	"os"
	"testing"
	"time"
)

// drainAll runs WaitForData to exhaustion and returns the concatenated
// payload of the streams selected by mask.
func drainAll(t *testing.T, p *Pipeline, mask PipeMask) []byte {
	t.Helper()
	var out []byte
	for {
		res, err := p.WaitForData(mask, nil)
		if err != nil {
			t.Fatalf("WaitForData: %v", err)
		}
		if res.Pipe == 0 {
			return out
		}
		out = append(out, res.Data...)
	}
}

func TestScenario_SingleChildCleanExit(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"true"})
	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	drainAll(t, p, PipeStdout|PipeStderr)

	done, err := p.WaitForExit(nil)
	if err != nil || !done {
		t.Fatalf("WaitForExit: done=%v err=%v", done, err)
	}

	if p.State() != StateExited {
		t.Errorf("expected StateExited, got %v", p.State())
	}
	if p.ExitValue() != 0 {
		t.Errorf("expected exit value 0, got %d", p.ExitValue())
	}
	if p.ErrorString() != "" {
		t.Errorf("expected no error string, got %q", p.ErrorString())
	}
}

func TestScenario_SingleChildNonZeroExit(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"sh", "-c", "exit 7"})
	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	drainAll(t, p, PipeStdout|PipeStderr)

	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	if p.State() != StateExited {
		t.Errorf("expected StateExited, got %v", p.State())
	}
	if p.ExitValue() != 7 {
		t.Errorf("expected exit value 7, got %d", p.ExitValue())
	}
}

func TestScenario_ChildKilledBySignal(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"sh", "-c", "kill -SEGV $$"})
	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	drainAll(t, p, PipeStdout|PipeStderr)

	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	if p.State() != StateException {
		t.Errorf("expected StateException, got %v", p.State())
	}
	if p.ExitException() != ExitExceptionFault {
		t.Errorf("expected ExitExceptionFault, got %v", p.ExitException())
	}
}

func TestScenario_ExecFailure(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"/no/such/program"})
	err := p.Execute()
	if err == nil {
		t.Fatal("expected an error from Execute")
	}
	if p.State() != StateError {
		t.Errorf("expected StateError, got %v", p.State())
	}
	if p.ErrorString() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestScenario_PipelineTimeout(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"sleep", "5"})
	p.SetTimeout(200 * time.Millisecond)

	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	start := time.Now()
	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}
	elapsed := time.Since(start)

	if p.State() != StateExpired {
		t.Errorf("expected StateExpired, got %v", p.State())
	}
	if elapsed > 3*time.Second {
		t.Errorf("expected the pipeline to expire near its timeout, took %v", elapsed)
	}
}

func TestScenario_UserTimeoutWithoutKillingChild(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"sleep", "5"})

	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	userTimeout := 100 * time.Millisecond
	res, err := p.WaitForData(PipeStdout|PipeStderr, &userTimeout)
	if err != nil {
		t.Fatalf("WaitForData: %v", err)
	}
	if !res.TimedOut {
		t.Errorf("expected PipeTimeout sentinel, got %+v", res)
	}
	if p.State() != StateExecuting {
		t.Errorf("expected pipeline to still be alive, got %v", p.State())
	}

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	drainAll(t, p, PipeStdout|PipeStderr)
	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}
	if p.State() != StateKilled {
		t.Errorf("expected StateKilled, got %v", p.State())
	}
}

func TestScenario_TwoStagePipeline(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"printf", "a\nb\nc\n"})
	_ = p.AddCommand([]string{"wc", "-l"})

	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	out := drainAll(t, p, PipeStdout)

	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	if p.State() != StateExited || p.ExitValue() != 0 {
		t.Errorf("expected clean exit, got state=%v value=%d", p.State(), p.ExitValue())
	}

	got := string(out)
	want := "3"
	if len(got) < len(want) || got[len(got)-len(want)-1:len(got)-1] != want {
		t.Errorf("expected wc -l output to contain %q, got %q", want, got)
	}
}

func TestScenario_WorkingDirectory(t *testing.T) {
	dir, err := os.MkdirTemp("", "pipeline-test-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	resolved, err := os.Getwd()
	_ = resolved
	_ = err

	p := New()
	_ = p.AddCommand([]string{"pwd"})
	p.SetWorkingDirectory(dir)

	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	out := drainAll(t, p, PipeStdout)

	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	got := string(out)
	if len(got) == 0 || got[len(got)-1] != '\n' {
		t.Fatalf("expected pwd output to end in newline, got %q", got)
	}
	gotDir := got[:len(got)-1]
	if gotDir != dir {
		t.Errorf("expected pwd to report %q, got %q", dir, gotDir)
	}
}

func TestStageOutcomes_MultiStage(t *testing.T) {
	p := New()
	_ = p.AddCommand([]string{"true"})
	_ = p.AddCommand([]string{"sh", "-c", "exit 3"})

	if err := p.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer p.Close()

	drainAll(t, p, PipeStdout|PipeStderr)
	if _, err := p.WaitForExit(nil); err != nil {
		t.Fatalf("WaitForExit: %v", err)
	}

	stages := p.StageOutcomes()
	if len(stages) != 2 {
		t.Fatalf("expected 2 stage outcomes, got %d", len(stages))
	}
	if stages[0].ExitValue != 0 {
		t.Errorf("expected stage 0 to exit 0, got %d", stages[0].ExitValue)
	}
	if stages[1].ExitValue != 3 {
		t.Errorf("expected stage 1 to exit 3, got %d", stages[1].ExitValue)
	}
	// The legacy single-outcome accessors still report the last command.
	if p.ExitValue() != 3 {
		t.Errorf("expected ExitValue() to mirror the last stage, got %d", p.ExitValue())
	}
}

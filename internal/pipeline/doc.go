// Package pipeline runs a chain of child processes connected
// stdout-to-stdin, the way a shell pipe does, and gives the caller a
// single handle to drain their combined output and reap their exit
// status.
//
// # Pipeline
//
// A Pipeline owns zero or more commands. Execute forks every command
// in order, wiring each command's stdout to the next command's stdin:
//
//	p := pipeline.New()
//	p.AddCommand([]string{"printf", "a\nb\nc\n"})
//	p.AddCommand([]string{"wc", "-l"})
//	p.SetTimeout(5 * time.Second)
//
//	if err := p.Execute(); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	for {
//	    res, err := p.WaitForData(pipeline.PipeStdout|pipeline.PipeStderr, nil)
//	    if err != nil || res.Pipe == 0 {
//	        break
//	    }
//	    os.Stdout.Write(res.Data)
//	}
//
//	done, err := p.WaitForExit(nil)
//	fmt.Println(p.State(), p.ExitValue())
//
// # Timeouts
//
// SetTimeout configures a sticky pipeline-wide deadline measured from
// Execute; its expiry kills every child and drives the Pipeline to
// StateExpired. WaitForData additionally accepts a per-call user
// timeout that returns control to the caller without touching the
// children — the earlier of the two deadlines governs each call.
//
// # Thread safety
//
// A Pipeline is driven by a single goroutine calling Execute,
// WaitForData, WaitForExit, and Kill in sequence; it is not designed
// for concurrent calls against the same instance. Multiple Pipelines
// in the same process are independent and may run concurrently.
package pipeline

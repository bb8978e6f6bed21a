// Package main is the entry point for pipexec, a thin front end over
// the pipeline package.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/dshills/pipexec/internal/monitor"
	"github.com/dshills/pipexec/internal/pipeline"
	"github.com/dshills/pipexec/internal/pipeline/report"
)

func main() {
	os.Exit(run())
}

type options struct {
	timeout time.Duration
	workdir string
	watch   bool
	json    bool
	stages  [][]string
}

func run() int {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts == nil {
		return 0
	}

	p := pipeline.New()
	for _, argv := range opts.stages {
		if err := p.AddCommand(argv); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	p.SetTimeout(opts.timeout)
	p.SetWorkingDirectory(opts.workdir)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		_ = p.Kill()
	}()

	if err := p.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start pipeline: %v\n", err)
		return 1
	}
	defer p.Close()

	if opts.watch && term.IsTerminal(int(os.Stdout.Fd())) {
		dash, err := monitor.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open dashboard: %v\n", err)
			return 1
		}
		defer dash.Close()
		if err := dash.Watch(p); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		if err := drainToStreams(p); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if opts.json {
		if err := report.Write(os.Stdout, report.From(p)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	return exitCodeFor(p)
}

// drainToStreams copies the pipeline's stdout and stderr to this
// process's own stdout and stderr until it reaches a terminal state.
func drainToStreams(p *pipeline.Pipeline) error {
	for {
		res, err := p.WaitForData(pipeline.PipeStdout|pipeline.PipeStderr, nil)
		if err != nil {
			return err
		}
		if res.Pipe == 0 {
			break
		}
		switch res.Pipe {
		case pipeline.PipeStdout:
			os.Stdout.Write(res.Data)
		case pipeline.PipeStderr:
			os.Stderr.Write(res.Data)
		}
	}
	_, err := p.WaitForExit(nil)
	return err
}

func exitCodeFor(p *pipeline.Pipeline) int {
	switch p.State() {
	case pipeline.StateExited:
		return p.ExitValue()
	case pipeline.StateError:
		return 1
	default:
		return 1
	}
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("pipexec", flag.ContinueOnError)

	var timeoutSec float64
	var workdir string
	var watch bool
	var jsonOut bool

	fs.Float64Var(&timeoutSec, "timeout", 0, "pipeline wall-clock timeout in seconds (0 = none)")
	fs.StringVar(&workdir, "workdir", "", "working directory for every stage")
	fs.BoolVar(&watch, "watch", false, "show a live dashboard while the pipeline runs")
	fs.BoolVar(&jsonOut, "json", false, "print a JSON report after the pipeline finishes")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "pipexec - run a chain of commands connected stdin-to-stdout\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pipexec [options] cmd [args...] [| cmd [args...]]...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  pipexec -timeout 5 printf 'a\\nb\\nc\\n' '|' wc -l\n")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, nil
		}
		return nil, err
	}

	stages, err := splitStages(fs.Args())
	if err != nil {
		return nil, err
	}

	return &options{
		timeout: time.Duration(timeoutSec * float64(time.Second)),
		workdir: workdir,
		watch:   watch,
		json:    jsonOut,
		stages:  stages,
	}, nil
}

// splitStages breaks argv into one argument slice per stage, cutting
// on a literal "|" argument. Shell quoting and globbing are the
// caller's shell's job, not pipexec's.
func splitStages(argv []string) ([][]string, error) {
	var stages [][]string
	var current []string
	for _, a := range argv {
		if a == "|" {
			if len(current) == 0 {
				return nil, fmt.Errorf("empty stage before %q", strings.Join(argv, " "))
			}
			stages = append(stages, current)
			current = nil
			continue
		}
		current = append(current, a)
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("no command given")
	}
	stages = append(stages, current)
	return stages, nil
}

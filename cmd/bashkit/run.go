package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bashkit/bashkit/interp"
	"github.com/bashkit/bashkit/tool"
)

type runOptions struct {
	inline            string
	args              []string
	timeoutMS         int
	maxCommands       int
	maxLoopIterations int
}

// runScript executes a single script via a fresh [tool.Session], streaming
// stdout/stderr directly to the process's own as it runs and exiting with
// the interpreter's final exit code.
func runScript(ctx context.Context, opts runOptions) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	log := logrus.WithField("run_id", id.String())

	script, params, err := scriptSource(opts)
	if err != nil {
		return err
	}

	session, err := tool.NewSession(tool.Options{
		Limits: interp.Limits{
			MaxCommands:       opts.maxCommands,
			MaxLoopIterations: opts.maxLoopIterations,
		},
		Params: params,
	})
	if err != nil {
		return err
	}

	log.WithField("bytes", len(script)).Debug("bashkit: running script")
	resp, err := session.ExecuteStreaming(ctx, tool.Request{
		Commands:  script,
		TimeoutMS: opts.timeoutMS,
	}, func(stream string, chunk []byte) {
		if stream == "stderr" {
			os.Stderr.Write(chunk)
		} else {
			os.Stdout.Write(chunk)
		}
	})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		log.WithField("error", resp.Error).Warn("bashkit: execute reported an error")
	}
	return interp.NewExitStatus(uint8(resp.ExitCode))
}

// scriptSource resolves the -c inline command, or a script file argument
// with its remaining args becoming the script's positional parameters,
// mirroring the teacher's own gosh CLI surface (-c / positional script
// path) generalized to the run subcommand's "SCRIPT [ARGS...]" form.
func scriptSource(opts runOptions) (script string, params []string, err error) {
	if opts.inline != "" {
		return opts.inline, opts.args, nil
	}
	if len(opts.args) == 0 {
		return "", nil, fmt.Errorf("bashkit run: either -c CMD or a script path is required")
	}
	data, err := os.ReadFile(opts.args[0])
	if err != nil {
		return "", nil, err
	}
	return string(data), opts.args[1:], nil
}

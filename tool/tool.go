// Package tool implements the host-facing execute contract (spec §6.1):
// a single Session wraps an [interp.Runner] bound to its own [vfs.FS], and
// exposes Execute plus the introspection a host needs to offer BashKit to
// an LLM as a tool (name, description, JSON schema, streaming variant).
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bashkit/bashkit/interp"
	"github.com/bashkit/bashkit/syntax"
	"github.com/bashkit/bashkit/vfs"
)

// Request is the input half of the execute(request) -> response contract.
type Request struct {
	Commands  string
	TimeoutMS int
}

// Response is the output half of the execute contract.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Error    string
}

// StreamFunc receives incremental stdout/stderr chunks as a script runs.
// Stream is the channel argument ("stdout" or "stderr").
type StreamFunc func(stream string, chunk []byte)

// Session is a persistent BashKit interpreter session: one VFS, one set of
// exported shell variables, surviving across multiple Execute calls the way
// spec.md's "Session" glossary entry describes.
type Session struct {
	fs     *vfs.FS
	runner *interp.Runner
	limits interp.Limits
	stdout *swapWriter
	stderr *swapWriter
}

// swapWriter lets Execute point the Runner's fixed stdout/stderr writers at
// a fresh buffer each call. [interp.Runner.Reset] caches the writer set by
// [interp.StdIO] the first time it runs and keeps reusing that same value
// on every later reset, so the writer object handed to the Runner must
// never change identity across calls; only what it forwards to may change.
type swapWriter struct{ w io.Writer }

func (s *swapWriter) Write(p []byte) (int, error) { return s.w.Write(p) }

// Options configures a new [Session].
type Options struct {
	Quota  vfs.Quota
	Limits interp.Limits
	// Params sets the session's positional parameters ($1, $2, ...).
	Params []string
}

// NewSession builds a Session with its own VFS and Runner, wiring the
// Runner's open/stat/readdir handlers to the VFS so no script can ever
// reach the host filesystem, and refusing to exec real OS processes
// (spec Non-goals: no real fork/exec) via a sandboxed exec handler that
// always reports "command not found" for anything that isn't a builtin.
func NewSession(opts Options) (*Session, error) {
	fs := vfs.New(opts.Quota)
	h := fsHandlers{fs: fs}

	stdout := &swapWriter{w: io.Discard}
	stderr := &swapWriter{w: io.Discard}
	runner, err := interp.New(
		interp.StatHandler(h.stat),
		interp.ReadDirHandler2(h.readDir),
		interp.OpenHandler(h.open),
		interp.ExecHandler(sandboxExecHandler),
		interp.WithLimits(opts.Limits),
		interp.StdIO(nil, stdout, stderr),
		interp.Params(opts.Params...),
		// Dir("") falls back to the host's real working directory; every
		// session starts at the VFS root instead; no script may learn
		// anything about the host's real filesystem layout via $PWD.
		interp.Dir("/"),
	)
	if err != nil {
		return nil, err
	}
	return &Session{fs: fs, runner: runner, limits: opts.Limits, stdout: stdout, stderr: stderr}, nil
}

// FS returns the session's virtual filesystem, for hosts that want direct
// access (e.g. seeding files before a script runs, or reading a snapshot).
func (s *Session) FS() *vfs.FS { return s.fs }

// Execute parses and runs req.Commands to completion, returning captured
// stdout/stderr and the interpreter's final exit code. A per-call timeout,
// if given, applies alongside the session's configured
// [interp.Limits.Timeout], and whichever expires first ends the run; a
// resource limit being tripped surfaces as a non-nil Response.Error with
// the exit code the limit kind maps to (spec §7).
func (s *Session) Execute(ctx context.Context, req Request) (Response, error) {
	return s.execute(ctx, req, nil)
}

// ExecuteStreaming is like Execute but also delivers incremental chunks of
// stdout/stderr to onChunk as they're produced, for hosts that want to show
// progress before the script finishes.
func (s *Session) ExecuteStreaming(ctx context.Context, req Request, onChunk StreamFunc) (Response, error) {
	return s.execute(ctx, req, onChunk)
}

func (s *Session) execute(ctx context.Context, req Request, onChunk StreamFunc) (Response, error) {
	file, err := syntax.NewParser().Parse(bytes.NewReader([]byte(req.Commands)), "")
	if err != nil {
		return Response{ExitCode: 2, Error: err.Error()}, nil
	}

	var stdout, stderr bytes.Buffer
	if onChunk != nil {
		s.stdout.w = io.MultiWriter(&stdout, streamWriter{onChunk, "stdout"})
		s.stderr.w = io.MultiWriter(&stderr, streamWriter{onChunk, "stderr"})
	} else {
		s.stdout.w = &stdout
		s.stderr.w = &stderr
	}
	s.runner.Reset()

	deadlined := false
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	runErr := s.runner.Run(ctx, file)
	if ctx.Err() == context.DeadlineExceeded {
		// The per-call timeout above is independent of the session's own
		// [interp.Limits.Timeout]; Run only turns the latter into a
		// *LimitExceeded, so a per-call deadline needs its own check here.
		deadlined = true
	}

	resp := Response{Stdout: stdout.String(), Stderr: stderr.String()}
	var limitErr *interp.LimitExceeded
	switch {
	case deadlined:
		resp.ExitCode = 124
		resp.Error = "execute: timed out"
	case runErr == nil:
		resp.ExitCode = 0
	case errors.As(runErr, &limitErr):
		resp.ExitCode = int(limitErr.ExitCode())
		resp.Error = runErr.Error()
	default:
		if code, ok := interp.IsExitStatus(runErr); ok {
			resp.ExitCode = int(code)
		} else {
			resp.ExitCode = 1
			resp.Error = runErr.Error()
		}
	}
	return resp, nil
}

type streamWriter struct {
	fn     StreamFunc
	stream string
}

func (w streamWriter) Write(p []byte) (int, error) {
	w.fn(w.stream, p)
	return len(p), nil
}

// sandboxExecHandler refuses every external command: BashKit has no real
// process to exec (spec Non-goals). Anything reaching here already failed
// the builtin lookup, so it is a genuine "command not found".
func sandboxExecHandler(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)
	fmt.Fprintf(hc.Stderr, "%s: command not found\n", args[0])
	return interp.NewExitStatus(127)
}

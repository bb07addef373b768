package tool

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/bashkit/bashkit/interp"
)

func TestExecuteBasic(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "echo hello"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.ExitCode, qt.Equals, 0)
	c.Assert(resp.Stdout, qt.Equals, "hello\n")
}

func TestExecutePersistsState(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	_, err = session.Execute(context.Background(), Request{Commands: "x=1"})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "echo $x"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Stdout, qt.Equals, "1\n")
}

func TestExecuteWritesThroughVFS(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{
		Commands: "echo hi > note.txt; read -r line < note.txt; echo got:$line",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.ExitCode, qt.Equals, 0)
	c.Assert(resp.Stdout, qt.Equals, "got:hi\n")

	data, err := session.FS().ReadFile("/note.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "hi\n")
}

func TestExecuteExitCode(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "exit 42"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.ExitCode, qt.Equals, 42)
}

func TestExecuteParseError(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "if true"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.ExitCode, qt.Equals, 2)
	c.Assert(resp.Error, qt.Not(qt.Equals), "")
}

func TestExecuteCommandLimit(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{Limits: interp.Limits{MaxCommands: 2}})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "echo a; echo b; echo c"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.ExitCode, qt.Equals, 125)
}

func TestExecuteUnknownCommand(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "totally-not-a-command"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.ExitCode, qt.Equals, 127)
	c.Assert(resp.Stderr, qt.Contains, "command not found")
}

func TestExecuteStreaming(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{})
	c.Assert(err, qt.IsNil)

	var chunks []string
	resp, err := session.ExecuteStreaming(context.Background(), Request{Commands: "echo one"}, func(stream string, chunk []byte) {
		chunks = append(chunks, stream+":"+string(chunk))
	})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Stdout, qt.Equals, "one\n")
	c.Assert(chunks, qt.Contains, "stdout:one\n")
}

func TestExecuteParams(t *testing.T) {
	t.Parallel()
	c := qt.New(t)

	session, err := NewSession(Options{Params: []string{"a", "b"}})
	c.Assert(err, qt.IsNil)

	resp, err := session.Execute(context.Background(), Request{Commands: "echo $1 $2"})
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Stdout, qt.Equals, "a b\n")
}

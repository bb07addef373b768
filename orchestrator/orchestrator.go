// Package orchestrator implements spec §6.2's mini-tool composition
// contract: a host registers several Go callbacks as named mini-tools, and
// the orchestrator exposes them to a BashKit script as ordinary commands,
// each backed by long/short-option parameter extraction rather than a real
// executable.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bashkit/bashkit/interp"
)

// Result is a mini-tool callback's outcome: either Ok with the tool's
// stdout, or a non-empty Err naming what went wrong.
type Result struct {
	Stdout string
	Err    string
}

// Ok builds a successful [Result].
func Ok(stdout string) Result { return Result{Stdout: stdout} }

// Err builds a failed [Result].
func Err(message string) Result { return Result{Err: message} }

// Callback implements one mini-tool. parameters is extracted from the
// command's long-option ("--name value") and short-option ("-n value")
// arguments; stdin is the command's standard input.
type Callback func(ctx context.Context, parameters map[string]string, stdin io.Reader) Result

// Param describes one parameter of a mini-tool's schema, for the listing
// exposed as the aggregated tool's system prompt (spec §6.2) and for
// JSON-schema introspection (spec §6.1).
type Param struct {
	Name        string
	Short       string // single-letter short-option spelling, e.g. "n" for "-n"
	Description string
	Required    bool
}

// MiniTool is one registered command: a name, a human description, its
// parameter schema, and the callback that implements it.
type MiniTool struct {
	Name        string
	Description string
	Params      []Param
	Run         Callback
}

// Orchestrator composes a set of [MiniTool]s into one [interp.ExecHandlerFunc],
// installable on a Runner via [interp.ExecHandler]. Commands that don't name
// a registered mini-tool fall through to fallback, so an Orchestrator can sit
// in front of the session's ordinary "command not found" handling.
type Orchestrator struct {
	tools    map[string]MiniTool
	order    []string
	fallback interp.ExecHandlerFunc
}

// New builds an Orchestrator. fallback handles any command name that isn't
// one of the registered mini-tools; pass nil to always report "command not
// found" for unmatched names.
func New(fallback interp.ExecHandlerFunc) *Orchestrator {
	return &Orchestrator{tools: make(map[string]MiniTool), fallback: fallback}
}

// Register adds a mini-tool under t.Name, replacing any previous
// registration of the same name.
func (o *Orchestrator) Register(t MiniTool) {
	if _, exists := o.tools[t.Name]; !exists {
		o.order = append(o.order, t.Name)
	}
	o.tools[t.Name] = t
}

// SystemPrompt lists every registered mini-tool with its description and
// parameters, for an LLM host to compose them in a bash call (spec §6.2).
func (o *Orchestrator) SystemPrompt() string {
	var b strings.Builder
	names := append([]string(nil), o.order...)
	sort.Strings(names)
	for _, name := range names {
		t := o.tools[name]
		fmt.Fprintf(&b, "%s: %s\n", t.Name, t.Description)
		for _, p := range t.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			if p.Short != "" {
				fmt.Fprintf(&b, "  --%s, -%s  %s (%s)\n", p.Name, p.Short, p.Description, req)
			} else {
				fmt.Fprintf(&b, "  --%s  %s (%s)\n", p.Name, p.Description, req)
			}
		}
	}
	return b.String()
}

// ExecHandler returns the [interp.ExecHandlerFunc] that dispatches to
// registered mini-tools, for use with [interp.ExecHandler].
func (o *Orchestrator) ExecHandler() interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		t, ok := o.tools[args[0]]
		if !ok {
			if o.fallback != nil {
				return o.fallback(ctx, args)
			}
			hc := interp.HandlerCtx(ctx)
			fmt.Fprintf(hc.Stderr, "%s: command not found\n", args[0])
			return interp.NewExitStatus(127)
		}
		hc := interp.HandlerCtx(ctx)
		params, err := parseParams(t, args[1:])
		if err != nil {
			fmt.Fprintf(hc.Stderr, "%s: %v\n", t.Name, err)
			return interp.NewExitStatus(1)
		}
		result := t.Run(ctx, params, hc.Stdin)
		if result.Err != "" {
			fmt.Fprintln(hc.Stderr, result.Err)
			return interp.NewExitStatus(1)
		}
		io.WriteString(hc.Stdout, result.Stdout)
		return nil
	}
}

// parseParams extracts a mini-tool's parameters from its long/short-option
// argument list, erroring on a missing value or an unknown/missing required
// flag.
func parseParams(t MiniTool, args []string) (map[string]string, error) {
	byShort := make(map[string]string, len(t.Params))
	known := make(map[string]bool, len(t.Params))
	for _, p := range t.Params {
		known[p.Name] = true
		if p.Short != "" {
			byShort[p.Short] = p.Name
		}
	}

	params := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var name string
		switch {
		case strings.HasPrefix(arg, "--"):
			name = strings.TrimPrefix(arg, "--")
			if eq := strings.IndexByte(name, '='); eq >= 0 {
				if !known[name[:eq]] {
					return nil, fmt.Errorf("unknown option %q", arg)
				}
				params[name[:eq]] = name[eq+1:]
				continue
			}
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			short := strings.TrimPrefix(arg, "-")
			var ok bool
			name, ok = byShort[short]
			if !ok {
				return nil, fmt.Errorf("unknown option %q", arg)
			}
		default:
			return nil, fmt.Errorf("unexpected argument %q", arg)
		}
		if !known[name] {
			return nil, fmt.Errorf("unknown option %q", arg)
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("option %q requires a value", arg)
		}
		i++
		params[name] = args[i]
	}

	for _, p := range t.Params {
		if p.Required {
			if _, ok := params[p.Name]; !ok {
				return nil, fmt.Errorf("missing required option --%s", p.Name)
			}
		}
	}
	return params, nil
}

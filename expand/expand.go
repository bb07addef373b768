// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package expand implements shell word expansion, as done for parameters,
// command substitutions, arithmetic expressions, and pathnames. Unlike the
// upstream interpreter this package is modeled after, it never touches the
// host filesystem: pathname expansion is resolved entirely through the
// caller-supplied [Config.ReadDir] callback, which in BashKit is always
// backed by the sandboxed virtual filesystem.
package expand

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bashkit/bashkit/pattern"
	"github.com/bashkit/bashkit/syntax"
)

// ReadDirFunc lists directory entry names for globbing, exactly as
// [os.ReadDir] would, but backed by whatever storage the caller chooses
// (in BashKit, the virtual filesystem).
type ReadDirFunc func(path string) ([]string, error)

// Config carries every piece of external state the expander needs during
// one expansion pass: the environment to resolve variables against, the
// directory to expand globs and "~" relative to, and callbacks for command
// substitution and pathname listing.
type Config struct {
	Env Environ

	// Dir is the current working directory, used to resolve relative
	// globs and "$PWD"-relative lookups.
	Dir string

	// ReadDir lists a directory's entries for globbing. A nil value
	// disables pathname expansion entirely (as if NoGlob were set).
	ReadDir ReadDirFunc

	// CmdSubst evaluates a command substitution's statement list and
	// writes its standard output to w.
	CmdSubst func(ctx context.Context, w *bytes.Buffer, stmts []*syntax.Stmt) error

	NoGlob     bool
	GlobStar   bool
	NullGlob   bool
	NoCaseGlob bool
	NoUnset    bool

	bufferAlloc bytes.Buffer
	ifs         string
	curParam    *syntax.ParamExp
}

// UnsetParameterError is returned (via panic, recovered by the caller) when
// `set -u` is active and an unset parameter is expanded.
type UnsetParameterError struct {
	Expr    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string { return u.Message }

func (c *Config) prepareIFS() {
	vr := c.Env.Get("IFS")
	if !vr.IsSet() {
		c.ifs = " \t\n"
	} else {
		c.ifs = vr.String()
	}
}

func (c *Config) ifsRune(r rune) bool {
	for _, r2 := range c.ifs {
		if r == r2 {
			return true
		}
	}
	return false
}

func (c *Config) ifsJoin(strs []string) string {
	sep := ""
	if c.ifs != "" {
		sep = c.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (c *Config) strBuilder() *bytes.Buffer {
	b := &c.bufferAlloc
	b.Reset()
	return b
}

func (c *Config) envGet(name string) string {
	return c.Env.Get(name).String()
}

func (c *Config) envSet(name, value string) {
	c.Env.(WriteEnviron).Set(name, Variable{Set: true, Kind: String, Str: value})
}

// Literal expands a word with quote-removal but without field splitting or
// pathname expansion, as used for redirection targets and heredoc words.
func Literal(ctx context.Context, cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	var outErr error
	field := cfg.wordField(ctx, word.Parts, quoteDouble, &outErr)
	return cfg.fieldJoin(field), outErr
}

// Document expands a heredoc body, honoring its own (looser) quoting rules:
// only parameter/command/arithmetic expansion apply, never field splitting
// or globbing.
func Document(ctx context.Context, cfg *Config, word *syntax.Word) (string, error) {
	return Literal(ctx, cfg, word)
}

// Pattern expands a word into a shell pattern suitable for [pattern.Regexp],
// leaving glob metacharacters from unquoted parts untouched while escaping
// metacharacters that came from single- or double-quoted parts (including
// expansions inside double quotes). Unquoted expansions are left as pattern
// text.
func Pattern(ctx context.Context, cfg *Config, word *syntax.Word) (string, error) {
	var outErr error
	field := cfg.wordField(ctx, word.Parts, quoteSingle, &outErr)
	buf := cfg.strBuilder()
	for _, part := range field {
		if part.quote > quoteNone {
			buf.WriteString(pattern.QuoteMeta(part.val, 0))
		} else {
			buf.WriteString(part.val)
		}
	}
	return buf.String(), outErr
}

// Fields expands a list of words into the final command argv: brace
// expansion, parameter/command/arithmetic expansion, field splitting on
// IFS, and pathname expansion, in that order.
func Fields(ctx context.Context, cfg *Config, words ...*syntax.Word) ([]string, error) {
	cfg.prepareIFS()

	var outErr error
	fields := make([]string, 0, len(words))
	for _, word := range words {
		for _, expWord := range Braces(word) {
			for _, field := range cfg.wordFields(ctx, expWord.Parts, &outErr) {
				path, doGlob := cfg.escapedGlobField(field)
				var matches []string
				if doGlob && !cfg.NoGlob && cfg.ReadDir != nil {
					matches = cfg.glob(path)
				}
				switch {
				case len(matches) > 0:
					fields = append(fields, matches...)
				case doGlob && cfg.NullGlob && !cfg.NoGlob && cfg.ReadDir != nil:
					// matched nothing; drop the field entirely
				default:
					fields = append(fields, cfg.fieldJoin(field))
				}
			}
		}
	}
	return fields, outErr
}

type fieldPart struct {
	val   string
	quote quoteLevel
}

type quoteLevel uint

const (
	quoteNone quoteLevel = iota
	quoteDouble
	quoteSingle
)

func (c *Config) fieldJoin(parts []fieldPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0].val
	}
	buf := c.strBuilder()
	for _, part := range parts {
		buf.WriteString(part.val)
	}
	return buf.String()
}

func (c *Config) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	buf := c.strBuilder()
	for _, part := range parts {
		if part.quote > quoteNone {
			buf.WriteString(pattern.QuoteMeta(part.val, 0))
			continue
		}
		buf.WriteString(part.val)
		if pattern.HasMeta(part.val, 0) {
			glob = true
		}
	}
	if glob {
		escaped = buf.String()
	}
	return escaped, glob
}

// glob expands a single pattern (which may contain "/") against cfg.ReadDir,
// sorting results the way POSIX pathname expansion requires.
func (c *Config) glob(pat string) []string {
	abs := path.IsAbs(pat)
	parts := strings.Split(pat, "/")
	matches := []string{"/"}
	if !abs {
		matches = []string{c.Dir}
	} else {
		parts = parts[1:]
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if part == "**" && c.GlobStar {
			var newMatches []string
			latest := matches
			for {
				var next []string
				for _, dir := range latest {
					next = c.globDir(dir, rxMatchAll, next)
				}
				newMatches = append(newMatches, latest...)
				if len(next) == 0 {
					break
				}
				latest = next
			}
			matches = newMatches
			continue
		}
		expr, err := pattern.Regexp(part, pattern.EntireString)
		if err != nil {
			return nil
		}
		rx := regexp.MustCompile(expr)
		var next []string
		for _, dir := range matches {
			next = c.globDir(dir, rx, next)
		}
		matches = next
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !abs {
			if rel, err := relPath(c.Dir, m); err == nil {
				m = rel
			}
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

var rxMatchAll = regexp.MustCompile(".*")

func (c *Config) globDir(dir string, rx *regexp.Regexp, matches []string) []string {
	names, err := c.ReadDir(dir)
	if err != nil {
		return matches
	}
	sort.Strings(names)
	for _, name := range names {
		if !strings.HasPrefix(rx.String(), `^\.`) && strings.HasPrefix(name, ".") {
			continue
		}
		if rx.MatchString(name) {
			matches = append(matches, path.Join(dir, name))
		}
	}
	return matches
}

func relPath(base, target string) (string, error) {
	base = path.Clean(base)
	target = path.Clean(target)
	if !strings.HasPrefix(target, base+"/") {
		if target == base {
			return ".", nil
		}
		return target, nil
	}
	return strings.TrimPrefix(target, base+"/"), nil
}

func patternRegexp(pat string, greedy bool) (*regexp.Regexp, error) {
	expr, err := syntax.TranslatePattern(pat, greedy)
	if err != nil {
		return nil, err
	}
	return regexp.Compile(expr)
}

func (c *Config) wordField(ctx context.Context, wps []syntax.WordPart, ql quoteLevel, outErr *error) []fieldPart {
	var field []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = c.expandTilde(s)
			}
			if ql == quoteDouble {
				s = unescapeDouble(s)
			}
			field = append(field, fieldPart{val: s})
		case *syntax.SglQuoted:
			field = append(field, fieldPart{quote: quoteSingle, val: x.Value})
		case *syntax.DblQuoted:
			for _, part := range c.wordField(ctx, x.Parts, quoteDouble, outErr) {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *syntax.ParamExp:
			field = append(field, fieldPart{val: c.paramExp(ctx, x, outErr)})
		case *syntax.CmdSubst:
			field = append(field, fieldPart{val: c.cmdSubst(ctx, x, outErr)})
		case *syntax.ArithmExp:
			n, err := Arithm(c, x.X)
			if err != nil && *outErr == nil {
				*outErr = err
			}
			field = append(field, fieldPart{val: strconv.Itoa(n)})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	return field
}

func unescapeDouble(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\n':
				i++
				continue
			case '"', '\\', '$', '`':
				continue
			}
		}
		buf.WriteByte(b)
	}
	return buf.String()
}

func (c *Config) cmdSubst(ctx context.Context, cs *syntax.CmdSubst, outErr *error) string {
	buf := c.strBuilder2()
	if c.CmdSubst != nil {
		if err := c.CmdSubst(ctx, buf, cs.Stmts); err != nil && *outErr == nil {
			*outErr = err
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

// strBuilder2 is a second scratch buffer, since cmdSubst can be called while
// another strBuilder() call is still in scope (e.g. nested substitutions).
func (c *Config) strBuilder2() *bytes.Buffer { return &bytes.Buffer{} }

func (c *Config) wordFields(ctx context.Context, wps []syntax.WordPart, outErr *error) [][]fieldPart {
	var fields [][]fieldPart
	var curField []fieldPart
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	splitAdd := func(val string) {
		parts := strings.FieldsFunc(val, c.ifsRune)
		for i, field := range parts {
			if i > 0 {
				flush()
			}
			curField = append(curField, fieldPart{val: field})
		}
	}
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = c.expandTilde(s)
			}
			s = unescapeAll(s)
			curField = append(curField, fieldPart{val: s})
		case *syntax.SglQuoted:
			allowEmpty = true
			curField = append(curField, fieldPart{quote: quoteSingle, val: x.Value})
		case *syntax.DblQuoted:
			allowEmpty = true
			if len(x.Parts) == 1 {
				if pe, ok := x.Parts[0].(*syntax.ParamExp); ok {
					if elems := c.quotedElems(pe); elems != nil {
						for i, elem := range elems {
							if i > 0 {
								flush()
							}
							curField = append(curField, fieldPart{quote: quoteDouble, val: elem})
						}
						continue
					}
				}
			}
			for _, part := range c.wordField(ctx, x.Parts, quoteDouble, outErr) {
				part.quote = quoteDouble
				curField = append(curField, part)
			}
		case *syntax.ParamExp:
			splitAdd(c.paramExp(ctx, x, outErr))
		case *syntax.CmdSubst:
			splitAdd(c.cmdSubst(ctx, x, outErr))
		case *syntax.ArithmExp:
			n, err := Arithm(c, x.X)
			if err != nil && *outErr == nil {
				*outErr = err
			}
			curField = append(curField, fieldPart{val: strconv.Itoa(n)})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields
}

func unescapeAll(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\\' && i+1 < len(s) {
			i++
			b = s[i]
		}
		buf.WriteByte(b)
	}
	return buf.String()
}

// quotedElems checks if a parameter expansion is exactly ${@}, ${*}, or
// ${arr[@]}/${arr[*]}, in which case each element keeps its own field.
func (c *Config) quotedElems(pe *syntax.ParamExp) []string {
	if pe == nil || pe.Length {
		return nil
	}
	if pe.Param.Value == "@" || pe.Param.Value == "*" {
		return c.Env.Get("@").List
	}
	if pe.Ind == nil {
		return nil
	}
	lit := anyOfLit(&pe.Ind.Word, "@", "*")
	if lit == "" {
		return nil
	}
	vr := c.Env.Get(pe.Param.Value)
	if vr.Kind == Associative {
		keys := make([]string, 0, len(vr.Map))
		for k := range vr.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = vr.Map[k]
		}
		return vals
	}
	return vr.List
}

func (c *Config) expandTilde(field string) string {
	if len(field) == 0 || field[0] != '~' {
		return field
	}
	name := field[1:]
	rest := ""
	if i := strings.Index(name, "/"); i >= 0 {
		rest = name[i:]
		name = name[:i]
	}
	if name != "" {
		// BashKit never resolves other users' home directories; "~name"
		// is left untouched, per spec.
		return field
	}
	return c.envGet("HOME") + rest
}

func anyOfLit(v any, vals ...string) string {
	word, _ := v.(*syntax.Word)
	if word == nil || len(word.Parts) != 1 {
		return ""
	}
	lit, ok := word.Parts[0].(*syntax.Lit)
	if !ok {
		return ""
	}
	for _, val := range vals {
		if lit.Value == val {
			return val
		}
	}
	return ""
}

func findAllIndex(pat, name string, n int) [][]int {
	rx, err := patternRegexp(pat, true)
	if err != nil {
		return nil
	}
	return rx.FindAllStringIndex(name, n)
}

// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bashkit/bashkit/syntax"
)

// paramExp resolves a single ${...} or $name parameter expansion to its
// string value, applying whichever operator (if any) the node carries.
func (c *Config) paramExp(ctx context.Context, pe *syntax.ParamExp, outErr *error) string {
	oldParam := c.curParam
	c.curParam = pe
	defer func() { c.curParam = oldParam }()

	name := pe.Param.Value
	var index *syntax.Word
	if pe.Ind != nil {
		index = &pe.Ind.Word
	}
	switch name {
	case "@", "*":
		index = &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: name}}}
	}

	var vr Variable
	switch name {
	case "LINENO":
		line := uint64(pe.Pos().Line())
		vr = Variable{Set: true, Kind: String, Str: strconv.FormatUint(line, 10)}
	default:
		vr = c.Env.Get(name)
	}
	set := vr.IsSet()
	if !set && c.NoUnset && pe.Exp == nil {
		if *outErr == nil {
			*outErr = UnsetParameterError{Expr: pe, Message: name + ": unbound variable"}
		}
	}

	str := c.varStr(vr, 0)
	var elems []string
	if index != nil {
		str, elems = c.varInd(ctx, vr, index, 0)
	}
	if elems == nil {
		elems = []string{str}
	}

	slicePos := func(expr syntax.ArithmExpr) int {
		p, err := Arithm(c, expr)
		if err != nil && *outErr == nil {
			*outErr = err
		}
		if p < 0 {
			p = len(str) + p
			if p < 0 {
				p = 0
			}
		} else if p > len(str) {
			p = len(str)
		}
		return p
	}

	switch {
	case pe.Length:
		n := len(elems)
		if anyOfLit(index, "@", "*") == "" {
			n = utf8.RuneCountInString(str)
		}
		str = strconv.Itoa(n)
	case pe.Slice != nil:
		if pe.Slice.Offset.Parts != nil {
			str = str[slicePos(&pe.Slice.Offset):]
		}
		if pe.Slice.Length.Parts != nil {
			n := slicePos(&pe.Slice.Length)
			if n < len(str) {
				str = str[:n]
			}
		}
	case pe.Repl != nil:
		orig, err := Pattern(ctx, c, &pe.Repl.Orig)
		if err != nil && *outErr == nil {
			*outErr = err
		}
		with, err := Literal(ctx, c, &pe.Repl.With)
		if err != nil && *outErr == nil {
			*outErr = err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		buf := c.strBuilder()
		last := 0
		for _, loc := range locs {
			buf.WriteString(str[last:loc[0]])
			buf.WriteString(with)
			last = loc[1]
		}
		buf.WriteString(str[last:])
		str = buf.String()
	case pe.Exp != nil:
		arg, err := Literal(ctx, c, &pe.Exp.Word)
		if err != nil && *outErr == nil {
			*outErr = err
		}
		switch op := pe.Exp.Op; op {
		case syntax.SubstColPlus:
			if str == "" {
				break
			}
			fallthrough
		case syntax.SubstPlus:
			if set {
				str = arg
			}
		case syntax.SubstMinus:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColMinus:
			if str == "" {
				str = arg
			}
		case syntax.SubstQuest:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColQuest:
			if str == "" && *outErr == nil {
				*outErr = UnsetParameterError{Expr: pe, Message: arg}
			}
		case syntax.SubstAssgn:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColAssgn:
			if str == "" {
				c.envSet(name, arg)
				str = arg
			}
		case syntax.RemSmallPrefix, syntax.RemLargePrefix,
			syntax.RemSmallSuffix, syntax.RemLargeSuffix:
			suffix := op == syntax.RemSmallSuffix || op == syntax.RemLargeSuffix
			large := op == syntax.RemLargePrefix || op == syntax.RemLargeSuffix
			for i, elem := range elems {
				elems[i] = removePattern(elem, arg, suffix, large)
			}
			str = strings.Join(elems, " ")
		case syntax.UpperFirst, syntax.UpperAll, syntax.LowerFirst, syntax.LowerAll:
			caseFunc := unicode.ToLower
			if op == syntax.UpperFirst || op == syntax.UpperAll {
				caseFunc = unicode.ToUpper
			}
			all := op == syntax.UpperAll || op == syntax.LowerAll
			rx, rxErr := patternRegexp(arg, false)
			for i, elem := range elems {
				if rxErr != nil {
					continue
				}
				rs := []rune(elem)
				for ri, r := range rs {
					if rx.MatchString(string(r)) {
						rs[ri] = caseFunc(r)
						if !all {
							break
						}
					}
				}
				elems[i] = string(rs)
			}
			str = strings.Join(elems, " ")
		case syntax.OtherParamOps:
			switch arg {
			case "Q":
				str = strconv.Quote(str)
			case "E":
				tail := str
				var rns []rune
				for tail != "" {
					var rn rune
					rn, _, tail, _ = strconv.UnquoteChar(tail, 0)
					rns = append(rns, rn)
				}
				str = string(rns)
			default:
				// P, A, a and unknown operators: unsupported in the
				// sandboxed expander, left as a no-op.
			}
		}
	}
	return str
}

func removePattern(str, pat string, fromEnd, greedy bool) string {
	expr, err := syntax.TranslatePattern(pat, greedy)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		expr = ".*(" + expr + ")$"
	case fromEnd:
		expr = "(" + expr + ")$"
	default:
		expr = "^(" + expr + ")"
	}
	rx := regexp.MustCompile(expr)
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}

func (c *Config) varStr(vr Variable, depth int) string {
	if depth > maxRefDepth {
		return ""
	}
	if vr.Kind == NameRef {
		return c.varStr(c.Env.Get(vr.Str), depth+1)
	}
	return vr.String()
}

const maxRefDepth = 100

// varInd resolves ${name[index]} / ${name[@]} / ${name[*]}, returning both
// the joined string value and (for "@" and "*" subscripts) the element list
// used by the length, prefix/suffix removal and case operators.
func (c *Config) varInd(ctx context.Context, vr Variable, idx *syntax.Word, depth int) (string, []string) {
	if depth > maxRefDepth {
		return "", nil
	}
	switch vr.Kind {
	case NameRef:
		return c.varInd(ctx, c.Env.Get(vr.Str), idx, depth+1)
	case Indexed:
		switch anyOfLit(idx, "@", "*") {
		case "@":
			return strings.Join(vr.List, " "), vr.List
		case "*":
			return c.ifsJoin(vr.List), vr.List
		}
		n, err := Arithm(c, idx)
		if err == nil && n >= 0 && n < len(vr.List) {
			return vr.List[n], nil
		}
		return "", nil
	case Associative:
		if lit := anyOfLit(idx, "@", "*"); lit != "" {
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			vals := make([]string, len(keys))
			for i, k := range keys {
				vals[i] = vr.Map[k]
			}
			if lit == "*" {
				return c.ifsJoin(vals), vals
			}
			return strings.Join(vals, " "), vals
		}
		key, _ := Literal(ctx, c, idx)
		return vr.Map[key], nil
	default:
		if anyOfLit(idx, "@", "*") != "" {
			s := vr.String()
			if s == "" {
				return "", nil
			}
			return s, []string{s}
		}
		n, err := Arithm(c, idx)
		if err == nil && n == 0 {
			return vr.String(), nil
		}
		return "", nil
	}
}

func (c *Config) namesByPrefix(prefix string) []string {
	var names []string
	c.Env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names
}

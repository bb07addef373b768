// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"strconv"

	"github.com/bashkit/bashkit/expand"
	"github.com/bashkit/bashkit/syntax"
)

// execEnv flattens an [expand.Environ] into a "NAME=value" slice suitable
// for [os/exec.Cmd.Env], including only variables that are actually set.
func execEnv(env expand.Environ) []string {
	list := make([]string, 0, 64)
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.IsSet() {
			list = append(list, name+"="+vr.String())
		}
		return true
	})
	return list
}

// overlayEnviron layers a writable scope on top of a parent [expand.Environ].
// Lookups fall through to the parent when a name hasn't been set locally;
// writes always land in the local scope. This backs both function-local
// variables (funcScope true, discarded when the function returns) and the
// handler-local overlay used to expose a consistent view of the
// environment to [HandlerContext].
type overlayEnviron struct {
	parent    expand.Environ
	values    map[string]expand.Variable
	funcScope bool
}

var _ expand.WriteEnviron = (*overlayEnviron)(nil)

// newOverlayEnviron builds the writable environment for a subshell copy of
// parent. Background subshells (process substitutions, "&") may run
// concurrently with the shell that spawned them, so they get an independent
// snapshot instead of a live pointer into the parent's overlay; foreground
// subshells are never used concurrently with their parent, so they can share
// the parent chain directly and pay no copying cost.
func newOverlayEnviron(parent expand.Environ, background bool) *overlayEnviron {
	if !background {
		return &overlayEnviron{parent: parent}
	}
	o := &overlayEnviron{values: make(map[string]expand.Variable)}
	parent.Each(func(name string, vr expand.Variable) bool {
		o.values[name] = vr
		return true
	})
	return o
}

func (o *overlayEnviron) Get(name string) expand.Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	if o.parent != nil {
		return o.parent.Get(name)
	}
	return expand.Variable{}
}

func (o *overlayEnviron) Set(name string, vr expand.Variable) error {
	if o.values == nil {
		o.values = make(map[string]expand.Variable)
	}
	o.values[name] = vr
	return nil
}

func (o *overlayEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	seen := make(map[string]bool, len(o.values))
	for name, vr := range o.values {
		seen[name] = true
		if !fn(name, vr) {
			return
		}
	}
	if o.parent == nil {
		return
	}
	o.parent.Each(func(name string, vr expand.Variable) bool {
		if seen[name] {
			return true
		}
		return fn(name, vr)
	})
}

// lookupVar resolves a variable by name, following the Runner's writable
// overlay back to its base environment.
func (r *Runner) lookupVar(name string) expand.Variable {
	if r.writeEnv == nil {
		return expand.Variable{}
	}
	return r.writeEnv.Get(name)
}

// setVar replaces a variable's attributes and value, honoring read-only
// variables by simply refusing to overwrite them.
func (r *Runner) setVar(name string, vr expand.Variable) {
	if prev := r.lookupVar(name); prev.ReadOnly && !vr.ReadOnly {
		return
	}
	r.writeEnv.Set(name, vr)
	if name == "IFS" {
		r.ifsUpdated()
	}
}

// setVarString sets a plain string variable, preserving the exported and
// read-only attributes an existing variable of the same name might carry.
func (r *Runner) setVarString(name, value string) {
	vr := r.lookupVar(name)
	vr.Set = true
	vr.Kind = expand.String
	vr.Str = value
	vr.List = nil
	vr.Map = nil
	r.setVar(name, vr)
}

// delVar unsets a variable entirely.
func (r *Runner) delVar(name string) {
	r.writeEnv.Set(name, expand.Variable{})
}

// envGet is a convenience wrapper returning a variable's plain string value,
// or "" if it is unset.
func (r *Runner) envGet(name string) string {
	return r.lookupVar(name).String()
}

// assignVal computes the new value of a variable given an assignment node,
// honoring append ("+=") and the declare/local/nameref/array value-type
// hints in valType. The variable's attributes (Local, Exported, ReadOnly)
// are inherited from prev; callers adjust them afterwards as needed.
func (r *Runner) assignVal(prev expand.Variable, as *syntax.Assign, valType string) expand.Variable {
	vr := prev
	vr.Set = true

	if as.Array != nil {
		var list []string
		for _, w := range as.Array.List {
			w := w
			for _, f := range r.fields(r.ectx, &w) {
				list = append(list, f)
			}
		}
		if as.Append && vr.Kind == expand.Indexed {
			vr.List = append(vr.List, list...)
		} else {
			vr.Kind = expand.Indexed
			vr.List = list
		}
		return vr
	}

	switch valType {
	case "-a":
		if vr.Kind != expand.Indexed {
			vr.Kind = expand.Indexed
			vr.List = nil
		}
	case "-A":
		if vr.Kind != expand.Associative {
			vr.Kind = expand.Associative
			vr.Map = nil
		}
	case "-n":
		vr.Kind = expand.NameRef
	}

	val := r.literal(r.ectx, &as.Value)
	if as.Index != nil {
		r.setIndexed(&vr, as.Index, val, as.Append)
		return vr
	}

	switch vr.Kind {
	case expand.Indexed:
		if as.Append {
			vr.List = append(vr.List, val)
		} else {
			vr.List = []string{val}
		}
	case expand.Associative:
		// A naked array assignment to an associative array sets element
		// "0" and keeps its other elements.
		if vr.Map == nil {
			vr.Map = make(map[string]string)
		}
		vr.Map["0"] = val
	default:
		vr.Kind = expand.String
		if as.Append {
			vr.Str += val
		} else {
			vr.Str = val
		}
	}
	return vr
}

// setIndexed assigns a single element of an indexed or associative array,
// e.g. "a[2]=x" or "a[key]=x".
func (r *Runner) setIndexed(vr *expand.Variable, index syntax.ArithmExpr, val string, appendTo bool) {
	if vr.Kind == expand.Associative {
		key := r.literalArithmWord(index)
		if vr.Map == nil {
			vr.Map = make(map[string]string)
		}
		if appendTo {
			vr.Map[key] += val
		} else {
			vr.Map[key] = val
		}
		return
	}
	vr.Kind = expand.Indexed
	i := r.arithm(index)
	for i >= len(vr.List) {
		vr.List = append(vr.List, "")
	}
	if appendTo {
		vr.List[i] += val
	} else {
		vr.List[i] = val
	}
}

// literalArithmWord extracts a literal key from an ArithmExpr used as an
// associative array subscript, where the key is a bare word rather than a
// numeric expression.
func (r *Runner) literalArithmWord(expr syntax.ArithmExpr) string {
	if w, ok := expr.(*syntax.Word); ok {
		return r.literal(r.ectx, w)
	}
	return strconv.Itoa(r.arithm(expr))
}

// setVarWithIndex applies an assignment that may target a single array
// element (as.Index != nil) rather than the whole variable.
func (r *Runner) setVarWithIndex(prev expand.Variable, name string, index syntax.ArithmExpr, vr expand.Variable) {
	r.setVar(name, vr)
}

// ifsUpdated refreshes any cached state derived from $IFS. The expand
// package recomputes its split set lazily from the environment on every
// call, so there is nothing to precompute here; this hook exists so that
// future caching can be added in one place.
func (r *Runner) ifsUpdated() {}

// namesByPrefix returns every currently-set variable name starting with
// prefix, used by "${!prefix*}" and "${!prefix@}" expansions.
func (r *Runner) namesByPrefix(prefix string) []string {
	var names []string
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix && vr.IsSet() {
			names = append(names, name)
		}
		return true
	})
	return names
}

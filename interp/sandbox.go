// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"sort"

	"github.com/bashkit/bashkit/expand"
)

// Sandbox system-identity constants. A script running under a Runner must
// never be able to observe the identity of the host process it actually
// runs in, so every builtin that would normally surface uid, hostname or
// kernel information reports these fixed values instead.
const (
	sandboxHostname = "bashkit-sandbox"
	sandboxKernel   = "Linux 5.15.0-sandbox"
	sandboxUID      = "1000"
	sandboxUser     = "sandbox"
)

// sandboxInfo implements the system-identity builtins: hostname, uname, id,
// whoami, env and printenv. They never touch the real host; all of their
// output is either a fixed sandbox value or drawn from the Runner's own
// variable environment.
func (r *Runner) sandboxInfo(name string, args []string) {
	switch name {
	case "hostname":
		r.out(sandboxHostname + "\n")
	case "uname":
		r.unameOutput(args)
	case "whoami":
		r.out(sandboxUser + "\n")
	case "id":
		r.outf("uid=%s(%s) gid=%s(%s) groups=%s(%s)\n",
			sandboxUID, sandboxUser, sandboxUID, sandboxUser, sandboxUID, sandboxUser)
	case "env", "printenv":
		r.envOutput(args)
	}
}

func (r *Runner) unameOutput(args []string) {
	all := false
	for _, a := range args {
		if a == "-a" || a == "--all" {
			all = true
		}
	}
	if all {
		r.outf("Linux %s %s #1 SMP x86_64 GNU/Linux\n", sandboxHostname, sandboxKernel)
		return
	}
	r.out("Linux\n")
}

// envOutput prints the shell's exported variables as NAME=value lines, the
// way env(1) and printenv(1) do. With one argument (for either command) it
// instead prints just that variable's value.
func (r *Runner) envOutput(args []string) {
	if len(args) == 1 {
		r.out(r.envGet(args[0]))
		if vr := r.lookupVar(args[0]); vr.IsSet() {
			r.out("\n")
		}
		return
	}
	var lines []string
	r.writeEnv.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported && vr.IsSet() {
			lines = append(lines, name+"="+vr.String())
		}
		return true
	})
	sort.Strings(lines)
	for _, line := range lines {
		r.out(line + "\n")
	}
}

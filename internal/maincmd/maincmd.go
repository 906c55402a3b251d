// Package maincmd is the argv/stdio glue between cmd/clox and the
// interpreter (spec §4.K, §6), following the split the teacher repository
// uses between its thin cmd/ binary and this package's Cmd.Main.
package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/clox/internal/config"
	"github.com/mna/clox/lang/vm"
)

const binName = "clox"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

A bytecode interpreter for a small class-based, dynamically typed scripting
language (spec §1).

With no <path>, %[1]s starts an interactive REPL reading from stdin, one
line at a time. With a <path>, %[1]s compiles and runs that source file.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

Tuning the VM happens through environment variables (see internal/config):
       CLOX_INITIAL_HEAP_BYTES, CLOX_GC_GROW_FACTOR, CLOX_STRESS_GC,
       CLOX_LOG_GC, CLOX_TRACE_EXEC, CLOX_FRAME_MAX
`, binName)
)

// Cmd is the argv-bound command, parsed by mainer.Parser (spec §6 CLI).
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	args []string
}

func (c *Cmd) SetArgs(args []string)        { c.args = args }
func (c *Cmd) SetFlags(_ map[string]bool)   {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) > 1 {
		return fmt.Errorf("too many arguments: expected at most one script path")
	}
	return nil
}

// Main parses args and dispatches to file or REPL mode, returning the exit
// code spec §6 prescribes: 0 success, 64 usage error, 65 compile error, 70
// runtime error.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: true, EnvPrefix: binName + "_"}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.ExitCode(64)
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return mainer.ExitCode(64)
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	machine := vm.New(cfg, stdio.Stdout, stdio.Stderr)

	if len(c.args) == 1 {
		src, err := os.ReadFile(c.args[0])
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			return mainer.Failure
		}
		return exitCodeFor(machine.Interpret(ctx, string(src)))
	}

	runREPL(ctx, machine, stdio)
	return mainer.Success
}

func exitCodeFor(r vm.Result) mainer.ExitCode {
	switch r {
	case vm.Ok:
		return mainer.Success
	case vm.CompileError:
		return mainer.ExitCode(65)
	case vm.RuntimeError:
		return mainer.ExitCode(70)
	default:
		return mainer.Failure
	}
}

package maincmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/clox/lang/vm"
)

// runREPL implements the line-at-a-time interactive mode of spec §4.K: each
// line is compiled and run independently against the same VM, so top-level
// variable and function declarations persist across lines. A compile or
// runtime error on one line is reported but does not end the session; only
// EOF on stdin or context cancellation (Ctrl-C) does. Per-line errors never
// affect the process exit code: original_source/main.c's repl() is void and
// main() always falls through to a plain "return 0" after it.
func runREPL(ctx context.Context, m *vm.VM, stdio mainer.Stdio) {
	scanner := bufio.NewScanner(stdio.Stdin)

	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if ctx.Err() != nil {
			return
		}
		if !scanner.Scan() {
			return
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		m.Interpret(ctx, line)
	}
}

package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/mna/mainer"
)

// Repl interprets lines one at a time on a single machine, so definitions
// persist from line to line. The prompt is only printed when stdin is a
// terminal.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	m := c.newMachine(stdio)
	defer m.Free()

	var interactive bool
	if f, ok := stdio.Stdin.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	sc := bufio.NewScanner(stdio.Stdin)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if interactive {
			fmt.Fprint(stdio.Stdout, "> ")
		}
		if !sc.Scan() {
			break
		}
		// errors are printed by the machine; the repl keeps going
		m.Interpret(sc.Bytes())
	}
	if interactive {
		fmt.Fprintln(stdio.Stdout)
	}
	return sc.Err()
}

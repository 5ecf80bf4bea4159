package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mna/calla/lang/compiler"
	"github.com/mna/calla/lang/machine"
	"github.com/mna/mainer"
)

func (c *Cmd) newMachine(stdio mainer.Stdio) *machine.Machine {
	return &machine.Machine{
		Stdout:   stdio.Stdout,
		Stderr:   stdio.Stderr,
		Stdin:    stdio.Stdin,
		StressGC: c.conf.GCStress,
		Trace:    c.conf.Trace,
	}
}

// Run interprets a source or compiled file.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	m := c.newMachine(stdio)
	defer m.Free()

	var res machine.Result
	if filepath.Ext(path) == compiledExt {
		fn, err := compiler.Decode(m.Heap(), b)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, err)
			return err
		}
		res = m.RunFunction(fn)
	} else {
		res = m.Interpret(b)
	}

	switch res {
	case machine.CompileError:
		return errCompileFailed
	case machine.RuntimeError:
		return errRuntimeFailed
	}
	return nil
}

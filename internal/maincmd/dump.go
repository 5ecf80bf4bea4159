package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mna/calla/lang/compiler"
	"github.com/mna/calla/lang/value"
	"github.com/mna/mainer"
)

// Dump prints the bytecode listing of a source file (compiling it first)
// or of an already compiled file.
func (c *Cmd) Dump(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	var fn *value.Function
	if filepath.Ext(path) == compiledExt {
		fn, err = compiler.Decode(value.NewHeap(), b)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, err)
			return err
		}
	} else {
		fn, err = compiler.Compile(value.NewHeap(), b)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return errCompileFailed
		}
	}

	compiler.Disasm(stdio.Stdout, fn)
	return nil
}

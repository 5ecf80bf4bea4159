package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mna/calla/lang/compiler"
	"github.com/mna/calla/lang/value"
	"github.com/mna/mainer"
)

// Compile compiles a source file and writes the serialized top-level
// function next to it, replacing the extension.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	fn, err := compiler.Compile(value.NewHeap(), b)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return errCompileFailed
	}

	data, err := compiler.Encode(fn)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + compiledExt
	if err := os.WriteFile(out, data, 0600); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	return nil
}

// Package maincmd implements the calla command-line tool: running and
// compiling source files, an interactive prompt, and the tokenizer and
// disassembler inspection commands.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"
)

const (
	binName = "calla"

	sourceExt   = ".calla"
	compiledExt = ".callab"
)

// exit codes for the run command, beyond the standard mainer ones.
const (
	exitCompileError mainer.ExitCode = 65
	exitRuntimeError mainer.ExitCode = 70
)

var (
	errCompileFailed = errors.New("compilation failed")
	errRuntimeFailed = errors.New("runtime error")
)

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>...]
       %[1]s -h|--help
       %[1]s -v|--version

Interpreter and all-in-one tool for the %[1]s programming language.

The <command> can be one of:
       run                       Interpret a source file (%[2]s) or a
                                 compiled file (%[3]s).
       repl                      Interpret lines interactively.
       compile                   Compile a source file and write the
                                 compiled form next to it (%[3]s).
       dump                      Compile a source file (or load a
                                 compiled one) and print the bytecode
                                 listing.
       tokenize                  Execute the scanner phase only and
                                 print the resulting tokens.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

The following environment variables tune the runtime:
       CALLA_GC_STRESS           Collect on every allocation.
       CALLA_TRACE_EXEC          Trace each executed instruction.

More information on the %[1]s repository:
       https://github.com/mna/calla
`, binName, sourceExt, compiledExt)
)

// config is the runtime tuning read from the environment.
type config struct {
	GCStress bool `env:"CALLA_GC_STRESS"`
	Trace    bool `env:"CALLA_TRACE_EXEC"`
}

// command describes one subcommand: how it runs and what file argument it
// accepts. A command that takes a file takes exactly one; anything without
// the compiled extension is treated as source, but commands restricted to
// source reject compiled files up front instead of scanning garbage.
type command struct {
	fn           func(*Cmd, context.Context, mainer.Stdio, []string) error
	wantsFile    bool
	acceptsCalla bool // accepts a compiled (.callab) file
}

var commands = map[string]command{
	"run":      {fn: (*Cmd).Run, wantsFile: true, acceptsCalla: true},
	"repl":     {fn: (*Cmd).Repl},
	"compile":  {fn: (*Cmd).Compile, wantsFile: true},
	"dump":     {fn: (*Cmd).Dump, wantsFile: true, acceptsCalla: true},
	"tokenize": {fn: (*Cmd).Tokenize, wantsFile: true},
}

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	conf  config
	args  []string
	cmdFn func(*Cmd, context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	c.cmdFn = cmd.fn

	if !cmd.wantsFile {
		if len(c.args) > 1 {
			return fmt.Errorf("%s: takes no file argument", cmdName)
		}
		return nil
	}
	if len(c.args) != 2 {
		return fmt.Errorf("%s: a single file must be provided", cmdName)
	}
	if !cmd.acceptsCalla && filepath.Ext(c.args[1]) == compiledExt {
		return fmt.Errorf("%s: cannot process a compiled file (%s)", cmdName, compiledExt)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	if err := env.Parse(&c.conf); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid environment: %s\n", err)
		return mainer.InvalidArgs
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(c, ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its errors, just map the error
		// to the exit code
		switch {
		case errors.Is(err, errCompileFailed):
			return exitCompileError
		case errors.Is(err, errRuntimeFailed):
			return exitRuntimeError
		}
		return mainer.Failure
	}
	return mainer.Success
}

package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/calla/lang/scanner"
	"github.com/mna/calla/lang/token"
	"github.com/mna/mainer"
)

// Tokenize prints the token stream of a source file, one token per line.
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	b, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	s := scanner.New(b)
	for {
		tok := s.Next()
		fmt.Fprintf(stdio.Stdout, "%d: %s", tok.Line, tok.Token)
		switch tok.Token {
		case token.IDENT, token.NUMBER, token.STRING, token.ILLEGAL:
			fmt.Fprintf(stdio.Stdout, " %s", tok.Lit)
		}
		fmt.Fprintln(stdio.Stdout)
		if tok.Token == token.EOF {
			return nil
		}
	}
}

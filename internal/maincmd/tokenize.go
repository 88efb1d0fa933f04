package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/mainer"
)

// Tokenize prints the raw token stream of the script named by args[0], one
// token per line, useful for debugging the scanner in isolation from the
// compiler.
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	sc := scanner.New(string(src))
	for {
		tok := sc.Scan()
		fmt.Fprintf(stdio.Stdout, "%4d %-12s %q\n", tok.Line, tok.Type, tok.Lexeme)
		if tok.Type == token.EOF || tok.Type == token.ILLEGAL {
			break
		}
	}
	return nil
}

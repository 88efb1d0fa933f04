package maincmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/mainer"
)

// Repl reads one line at a time from stdio.Stdin, compiling and running
// each as a standalone program on the same Thread. Globals persist across
// lines; compile and runtime errors are reported but do not end the
// session, only a closed input stream does.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	th, err := newThread(c)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	th.Stdout = stdio.Stdout
	th.Stderr = stdio.Stderr

	scanner := bufio.NewScanner(stdio.Stdin)
	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if ctx.Err() != nil {
			return nil
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := th.Interpret(ctx, line); err != nil {
			if _, ok := err.(*compiler.Error); ok {
				fmt.Fprintln(stdio.Stderr, err)
			}
		}
	}
}

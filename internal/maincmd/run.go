package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/mainer"
)

// Run compiles and executes the script named by args[0] to completion.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	th, err := newThread(c)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	th.Stdout = stdio.Stdout
	th.Stderr = stdio.Stderr

	if err := th.Interpret(ctx, string(src)); err != nil {
		// runtime errors are already reported by the thread itself; compile
		// errors are not, since Compile has no access to an output stream.
		if _, ok := err.(*compiler.Error); ok {
			fmt.Fprintln(stdio.Stderr, err)
		}
		return err
	}
	return nil
}

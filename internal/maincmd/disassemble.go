package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/value"
	"github.com/mna/mainer"
)

// Disassemble compiles the script named by args[0] and prints the bytecode
// listing of every function it defines (the top-level script included)
// without executing any of it.
func (c *Cmd) Disassemble(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	heap := value.NewHeap()
	fn, err := compiler.Compile(string(src), heap)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	disassembleFunction(stdio, fn)
	return nil
}

func disassembleFunction(stdio mainer.Stdio, fn *value.Function) {
	name := fn.Name.Chars
	if name == "" {
		name = "<script>"
	}
	fn.Chunk.Disassemble(stdio.Stdout, name)
	for _, k := range fn.Chunk.Constants {
		if nested, ok := k.(*value.Function); ok {
			disassembleFunction(stdio, nested)
		}
	}
}

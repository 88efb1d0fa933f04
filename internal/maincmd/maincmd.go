// Package maincmd implements the loxvm command-line surface: argument
// parsing and subcommand dispatch, built on the same mainer-based
// reflection dispatch convention the example pack uses for its own
// all-in-one tool.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/loxvm/internal/config"
	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/machine"
	"github.com/mna/loxvm/lang/value"
	"github.com/mna/mainer"
)

const binName = "loxvm"

// Exit codes follow the classic sysexits.h convention the reference
// implementation this tool is modeled on also uses for file-mode errors.
const (
	exitUsage        mainer.ExitCode = 64
	exitCompileError mainer.ExitCode = 65
	exitRuntimeError mainer.ExitCode = 70
)

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<command>] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<command>] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and virtual machine for the Lox programming language.

The <command> can be one of:
       run                       Compile and execute the script at <path>.
       repl                      Start an interactive read-eval-print loop.
                                 This is the default when no command and no
                                 path are given.
       disassemble               Compile <path> and print its bytecode
                                 listing without executing it.
       tokenize                  Print the raw token stream of <path>.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --trace                   Log each executed instruction and the
                                 value stack to stdout.
       --trace-gc                Log garbage collector statistics to
                                 stderr after each run.
       --config <path>           Read VM tuning defaults from a YAML file
                                 (overridden by LOXVM_* environment
                                 variables).

More information on the %[1]s repository:
       https://github.com/mna/loxvm
`, binName)
)

// Cmd is the root command, populated by mainer.Parser from command-line
// flags before Main dispatches to the requested subcommand. Environment
// variables are not read here; the LOXVM_* tuning variables are resolved
// by the config package.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Trace      bool   `flag:"trace"`
	TraceGC    bool   `flag:"trace-gc"`
	ConfigPath string `flag:"config"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	name := "repl"
	rest := c.args
	if len(c.args) > 0 {
		if _, isCmd := buildCmds(c)[c.args[0]]; isCmd {
			name = c.args[0]
			rest = c.args[1:]
		}
	}

	commands := buildCmds(c)
	c.cmdFn = commands[name]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", name)
	}
	c.args = rest

	if (name == "run" || name == "disassemble" || name == "tokenize") && len(rest) == 0 {
		return fmt.Errorf("%s: a script path is required", name)
	}
	if name == "repl" && len(rest) != 0 {
		return fmt.Errorf("repl: no path argument is accepted")
	}

	return nil
}

func newThread(c *Cmd) (*machine.Thread, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}
	heap := value.NewHeap()
	heap.Stress = cfg.GCStress
	if cfg.GCGrowFactor > 0 {
		heap.GrowFactor = cfg.GCGrowFactor
	}
	heap.SetInitialGrowBytes(cfg.GCHeapGrowBytes)

	th := machine.NewThread(heap)
	th.MaxCallDepth = cfg.MaxCallDepth
	th.StackSlots = cfg.StackSlots
	th.Trace = c.Trace
	th.TraceGC = c.TraceGC
	return th, nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return exitUsage
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	err := c.cmdFn(ctx, stdio, c.args)
	if err == nil {
		return mainer.Success
	}

	// each command has already printed its own error to stderr; only the
	// exit code remains to be decided.
	var cerr *compiler.Error
	var rerr *machine.RuntimeError
	switch {
	case errors.As(err, &cerr):
		return exitCompileError
	case errors.As(err, &rerr):
		return exitRuntimeError
	default:
		return mainer.Failure
	}
}

// valid commands are those that take a context.Context, a mainer.Stdio and a
// slice of strings as input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}

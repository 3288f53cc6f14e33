/*
Harelsh is an interactive shell that loads a compiled statechart and
drives a live instance of it so an operator can see how it responds to
events, without writing a host program first.

Guard conditions and entry/exit/transition code in the DSL are opaque
host-language text; harelsh cannot evaluate it (no compile step runs
here), so every guard is treated as satisfied and every action is
narrated - the lines it would have run are printed - rather than
executed. This is enough to walk the shape of a machine: which states
are active, which events move it, and where guards and timeouts would
have fired.

Usage:

	harelsh [flags] INPUT_PATH

INPUT_PATH is the host file containing the statechart to load.

Once started, type an event name (optionally followed by space-
separated arguments, bound positionally as strings) to fire it, or one
of:

	active             list the currently active states
	help               show the command summary
	quit, exit         leave the shell

The flags are:

	-v, --version
		Give the current version of harelsh and then exit.

	-m, --machine NAME
		Load the machine named NAME if INPUT_PATH declares more than
		one. If not given and there is exactly one machine, that one
		is used.

	-c, --config PATH
		Load base settings, including the extraction delimiters, from
		the given TOML config file.
*/
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/dekarrin/harel"
	"github.com/dekarrin/harel/internal/config"
	"github.com/dekarrin/harel/internal/dsl/ast"
	"github.com/dekarrin/harel/internal/dsl/sim"
	"github.com/dekarrin/harel/internal/input"
	"github.com/dekarrin/harel/internal/version"
	"github.com/dekarrin/harel/runtime"
)

const (
	ExitSuccess = iota
	ExitUsageError
	ExitCompileError
	ExitRuntimeError
)

var (
	flagVersion = pflag.BoolP("version", "v", false, "Give the current version of harelsh and then exit.")
	flagMachine = pflag.StringP("machine", "m", "", "Load the machine with this name if more than one is declared.")
	flagConfig  = pflag.StringP("config", "c", "", "Load base settings from the given TOML config file.")
)

// eventReader is satisfied by both of internal/input's readers, so the
// REPL loop doesn't care whether it's driven by a real terminal or a
// plain piped stream.
type eventReader interface {
	ReadEvent() (string, error)
	Close() error
}

func main() {
	os.Exit(run())
}

func run() int {
	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.Current)
		return ExitSuccess
	}

	args := pflag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Exactly one INPUT_PATH is required\nDo -h for help.\n")
		return ExitUsageError
	}
	inputPath := args[0]

	var fileCfg config.Config
	if *flagConfig != "" {
		var err error
		fileCfg, err = config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not load config file: %s\n", err.Error())
			return ExitUsageError
		}
	}

	c := harel.New()
	c.Extract = fileCfg.Extract.ToOptions()

	artifact, err := c.Load(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		return ExitCompileError
	}

	m, selErr := selectMachine(artifact, *flagMachine)
	if selErr != nil {
		fmt.Fprintf(os.Stderr, "%s\n", selErr.Error())
		return ExitUsageError
	}

	def := sim.Build(m, func(line string) {
		fmt.Printf("  sim: %s\n", line)
	})

	reactor := runtime.NewQueueReactor()
	inst := runtime.NewInstance(def, reactor)
	if err := inst.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
		return ExitRuntimeError
	}
	reactor.Sync()
	fmt.Printf("Loaded machine %q from %s\n", def.Name, inputPath)
	printActive(inst, def)

	reader, err := input.NewInteractiveReader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not start readline, falling back to plain stdin: %s\n", err.Error())
		reader = nil
	}
	var r eventReader
	if reader != nil {
		r = reader
	} else {
		r = input.NewDirectReader(os.Stdin)
	}
	defer r.Close()

	return repl(r, inst, reactor, def)
}

func selectMachine(artifact *harel.Artifact, name string) (*ast.Machine, error) {
	machines := artifact.Spec.Machines()
	if len(machines) == 0 {
		return nil, fmt.Errorf("input declares no machines")
	}
	if name != "" {
		for _, cand := range machines {
			if cand.Name == name {
				return cand, nil
			}
		}
		return nil, fmt.Errorf("no machine named %q", name)
	}
	if len(machines) > 1 {
		return nil, fmt.Errorf("declares %d machines; pick one with -m/--machine", len(machines))
	}
	return machines[0], nil
}

func repl(r eventReader, inst *runtime.Instance, reactor *runtime.QueueReactor, def *runtime.MachineDef) int {
	for {
		line, err := r.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return ExitSuccess
			}
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err.Error())
			return ExitRuntimeError
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := fields[0]

		switch cmd {
		case "quit", "exit":
			return ExitSuccess
		case "help":
			printHelp()
		case "active":
			printActive(inst, def)
		default:
			fireEvent(inst, reactor, def, cmd, fields[1:])
		}
	}
}

func fireEvent(inst *runtime.Instance, reactor *runtime.QueueReactor, def *runtime.MachineDef, name string, rawArgs []string) {
	args := make([]interface{}, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = a
	}
	if err := inst.Fire(name, args...); err != nil {
		fmt.Printf("ERROR: %s\n", err.Error())
		return
	}
	reactor.Sync()
	printActive(inst, def)
}

func printHelp() {
	fmt.Println("EVENT [arg...]   fire EVENT, binding each arg as a string")
	fmt.Println("active           list the currently active states")
	fmt.Println("help             show this summary")
	fmt.Println("quit, exit       leave the shell")
}

func printActive(inst *runtime.Instance, def *runtime.MachineDef) {
	var active []string
	var walk func(s *runtime.StateDef)
	walk = func(s *runtime.StateDef) {
		if inst.Active(s.FullName) {
			active = append(active, s.FullName)
		}
		for _, region := range s.Regions {
			for _, c := range region {
				walk(c)
			}
		}
	}
	walk(def.Root)
	fmt.Printf("active: %s\n", strings.Join(active, ", "))
}

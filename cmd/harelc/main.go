/*
Harelc compiles a single host source file containing an embedded
statechart DSL region into Go, a YAML dump of the resolved model, and/or
a PlantUML diagram.

Usage:

	harelc [flags] INPUT_PATH

INPUT_PATH is the path to the host file to compile, or "-" to read it
from stdin. At least one of --go, --yaml, or --plantuml must be given;
each names the file its corresponding rendering is written to, or "-"
to write it to stdout.

The flags are:

	-v, --version
		Give the current version of harelc and then exit.

	-g, --go OUTPATH
		Write the generated Go source to OUTPATH.

	-y, --yaml OUTPATH
		Write the resolved-model YAML dump to OUTPATH.

	-p, --plantuml OUTPATH
		Write the PlantUML diagram to OUTPATH.

	--go-package NAME
		Name of the package clause emitted in the Go rendering. Defaults to
		"machines".

	-c, --config PATH
		Load base settings, including the extraction delimiters, from the
		given TOML config file.

	--verbose
		Print a summary of what was compiled to stderr.
*/
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dekarrin/rosed"
	"github.com/spf13/pflag"

	"github.com/dekarrin/harel"
	"github.com/dekarrin/harel/internal/config"
	"github.com/dekarrin/harel/internal/version"
)

const (
	ExitSuccess = iota
	ExitUsageError
	ExitCompileError
	ExitIOError
)

const diagnosticWidth = 80

var (
	flagVersion   = pflag.BoolP("version", "v", false, "Give the current version of harelc and then exit.")
	flagGoOut     = pflag.StringP("go", "g", "", "Write the generated Go source to the given path.")
	flagYAMLOut   = pflag.StringP("yaml", "y", "", "Write the resolved-model YAML dump to the given path.")
	flagPUMLOut   = pflag.StringP("plantuml", "p", "", "Write the PlantUML diagram to the given path.")
	flagGoPackage = pflag.String("go-package", "machines", "Package name to emit in the Go rendering.")
	flagConfig    = pflag.StringP("config", "c", "", "Load base settings from the given TOML config file.")
	flagVerbose   = pflag.Bool("verbose", false, "Print a summary of what was compiled to stderr.")
)

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

	if *flagGoOut == "" && *flagYAMLOut == "" && *flagPUMLOut == "" {
		fmt.Fprintf(os.Stderr, "At least one of --go, --yaml, or --plantuml is required\nDo -h for help.\n")
		return ExitUsageError
	}

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
	c.GoPackage = *flagGoPackage

	var artifact *harel.Artifact
	var err error
	if inputPath == "-" {
		src, readErr := io.ReadAll(os.Stdin)
		if readErr != nil {
			fmt.Fprintf(os.Stderr, "Could not read stdin: %s\n", readErr.Error())
			return ExitIOError
		}
		artifact, err = c.Source(string(src))
	} else {
		artifact, err = c.Load(inputPath)
	}
	if err != nil {
		printDiagnostic(err)
		return ExitCompileError
	}

	if *flagGoOut != "" {
		if werr := writeOutput(*flagGoOut, artifact.Go); werr != nil {
			fmt.Fprintf(os.Stderr, "Could not write Go output: %s\n", werr.Error())
			return ExitIOError
		}
	}
	if *flagYAMLOut != "" {
		if werr := writeOutput(*flagYAMLOut, string(artifact.YAML)); werr != nil {
			fmt.Fprintf(os.Stderr, "Could not write YAML output: %s\n", werr.Error())
			return ExitIOError
		}
	}
	if *flagPUMLOut != "" {
		if werr := writeOutput(*flagPUMLOut, artifact.PlantUML); werr != nil {
			fmt.Fprintf(os.Stderr, "Could not write PlantUML output: %s\n", werr.Error())
			return ExitIOError
		}
	}

	if *flagVerbose {
		fmt.Fprintf(os.Stderr, "Compiled %d machine(s) from %s\n", len(artifact.Spec.Machines()), inputPath)
	}

	return ExitSuccess
}

func writeOutput(path, content string) error {
	if path == "-" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

func printDiagnostic(err error) {
	msg := rosed.Edit(err.Error()).Wrap(diagnosticWidth).String()
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", msg)
}

// Command naab runs a single NAAb source file end to end: parse, interpret,
// print the value of a trailing bare return, or null without one. This is not the CLI
// deliverable described in spec.md §1 ("out of scope: the CLI/REPL
// front-end") — it exists solely so the interpreter package has a runnable
// entry point to exercise manually and from integration tests.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/interp"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: naab <source-file.naab>")
		os.Exit(2)
	}
	path := os.Args[1]
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "naab: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	in := interp.New(interp.Options{
		Config:    cfg,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		SourceDir: filepath.Dir(path),
	})

	result, runErr := in.Run(path, string(src))
	if runErr != nil {
		if ne, ok := runErr.(*errs.Error); ok {
			fmt.Fprint(os.Stderr, ne.Render("", cfg.Production))
		} else {
			fmt.Fprintln(os.Stderr, runErr)
		}
		os.Exit(1)
	}
	if result != nil {
		fmt.Fprintln(os.Stdout, result.String())
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "fill", "Apply a /messages backfill response to a fragment", `
Apply a /messages response fixture to an existing fragment edge,
storing non-overlapping events and linking fragments on overlap.
`, &cmdFill{})

	addCmd(parser, "context", "Apply a /context response", `
Apply a /context response fixture, materializing a new fragment if
neither side overlaps an existing one.
`, &cmdContext{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	if err != nil {
		panic(fmt.Sprintf("failed to add flags parser command: %v", err))
	}
	return cmd
}

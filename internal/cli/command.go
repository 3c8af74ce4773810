package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one twpatch subcommand.
type Command struct {
	// Flags holds the command's own flags. Its name is unused; the command
	// is identified by the first word of Usage.
	Flags *flag.FlagSet

	// Usage follows "twpatch" in help output, e.g. "run [flags]".
	Usage string

	// Short is the one-line summary shown in the command list.
	Short string

	// Long replaces Short in "twpatch <cmd> --help" when set.
	Long string

	// NoArgs rejects positional arguments before Exec runs.
	NoArgs bool

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the command's row in the global usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.Usage, c.Short)
}

// PrintHelp writes the "twpatch <cmd> --help" text to w.
func (c *Command) PrintHelp(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Usage: twpatch %s\n\n%s\n", c.Usage, cmp.Or(c.Long, c.Short))

	if c.Flags.HasFlags() {
		_, _ = fmt.Fprintf(w, "\nFlags:\n%s", c.Flags.FlagUsages())
	}
}

// Run parses args, runs Exec and returns the exit code. Errors go to
// stderr; flag errors are followed by the command help.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(io.Discard)

	err := c.Flags.Parse(args)

	switch {
	case errors.Is(err, flag.ErrHelp):
		c.PrintHelp(o.out)

		return 0
	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o.errOut)

		return 1
	}

	rest := c.Flags.Args()
	if c.NoArgs && len(rest) > 0 {
		o.ErrPrintln("error:", fmt.Errorf("%w: %s", errUnexpectedArgs, strings.Join(rest, " ")))

		return 1
	}

	err = c.Exec(ctx, o, rest)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}

// Package logging wires loggo to the process output.
package logging

import (
	"fmt"
	"io"

	"github.com/juju/loggo/v2"
)

// Root is the module prefix every twpatch logger lives under.
const Root = "twpatch"

// Configure replaces the default loggo writer with one that writes to out
// and sets the level of all twpatch loggers. verbose lowers the level to
// DEBUG; otherwise INFO is used.
func Configure(out io.Writer, verbose bool) error {
	_, err := loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(out, formatEntry))
	if err != nil {
		return fmt.Errorf("replace log writer: %w", err)
	}

	level := "INFO"
	if verbose {
		level = "DEBUG"
	}

	err = loggo.ConfigureLoggers(fmt.Sprintf("<root>=WARNING;%s=%s", Root, level))
	if err != nil {
		return fmt.Errorf("configure loggers: %w", err)
	}

	return nil
}

func formatEntry(entry loggo.Entry) string {
	return fmt.Sprintf("%s %s %s", entry.Timestamp.Format("15:04:05"), entry.Level.Short(), entry.Message)
}

package cli

import (
	"fmt"
	"io"
)

// IO is the output side of one command. Results go to out, diagnostics to
// errOut. Warnings are queued and shown twice: before the first result line
// and again once the command is done, so a long run log cannot bury them.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO writes results to out and diagnostics to errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn queues "issue: action" for display. The action tells the user how to
// resolve the issue. A warning never fails the command.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, fmt.Sprintf("%s: %s", issue, action))
}

// Println prints a result line.
func (o *IO) Println(a ...any) {
	o.beginOutput()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf prints formatted result text.
func (o *IO) Printf(format string, a ...any) {
	o.beginOutput()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln prints a diagnostic line.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish repeats the queued warnings after the command's output. The exit
// code is always 0: only errors returned by Exec fail a command.
func (o *IO) Finish() int {
	// A command that printed nothing still shows its warnings up front.
	o.beginOutput()
	o.printWarnings()

	return 0
}

// beginOutput shows queued warnings once, before the first result line.
func (o *IO) beginOutput() {
	if !o.started {
		o.printWarnings()
	}

	o.started = true
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}

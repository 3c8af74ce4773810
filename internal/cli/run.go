package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/twpatch/internal/config"
)

const minArgs = 2

var (
	errUnknownCommand  = errors.New("unknown command")
	errUnexpectedArgs  = errors.New("unexpected arguments")
	errWorkDirNotFound = errors.New("cannot get working directory")
)

// Run is the main entry point. Returns exit code. A signal on sigCh cancels
// the running command; sigCh may be nil.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	globals := newGlobalFlags()

	err := globals.fs.Parse(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut)

		return 1
	}

	remaining := globals.fs.Args()
	if globals.help || len(remaining) == 0 {
		printUsage(out)

		return 0
	}

	workDir := globals.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error:", fmt.Errorf("%w: %w", errWorkDirNotFound, err))

			return 1
		}
	}

	cfg, sources, err := config.Load(workDir, globals.configPath, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	var cmd *Command

	for _, c := range commands(workDir, cfg, sources) {
		if c.Name() == remaining[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", errUnknownCommand, remaining[0]))
		fprintln(errOut)
		printUsage(errOut)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(out, errOut), remaining[1:])
}

func commands(workDir string, cfg config.Config, sources config.Sources) []*Command {
	return []*Command{
		RunCmd(workDir, cfg),
		GamesCmd(),
		PrintConfigCmd(workDir, cfg, sources),
	}
}

type globalFlags struct {
	fs         *flag.FlagSet
	workDir    string
	configPath string
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{fs: flag.NewFlagSet("twpatch", flag.ContinueOnError)}

	// Everything after the command name belongs to the command.
	g.fs.SetInterspersed(false)
	g.fs.SetOutput(&strings.Builder{})
	g.fs.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	g.fs.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	g.fs.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer) {
	fprintln(w, `twpatch - override archive builder for Total War games

Usage: twpatch [global flags] <command> [flags]

Global flags:`)

	var buf strings.Builder

	globals := newGlobalFlags()
	globals.fs.SetOutput(&buf)
	globals.fs.PrintDefaults()
	_, _ = io.WriteString(w, buf.String())

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands("", config.Config{}, config.Sources{}) {
		fprintln(w, c.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'twpatch <command> --help' for command flags.")
}

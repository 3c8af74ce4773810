package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/twpatch/internal/config"
)

// PrintConfigCmd returns the print-config command. It accepts the run flags
// so their effect on the resolved configuration can be inspected.
func PrintConfigCmd(workDir string, cfg config.Config, sources config.Sources) *Command {
	flags := flag.NewFlagSet("print-config", flag.ContinueOnError)
	config.RegisterFlags(flags)

	return &Command{
		Flags:  flags,
		Usage:  "print-config [flags]",
		Short:  "Show resolved configuration",
		Long:   "Display the effective configuration and which files it was loaded from.",
		NoArgs: true,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			err := config.ApplyFlags(&cfg, flags)
			if err != nil {
				return err
			}

			return execPrintConfig(o, resolvePaths(workDir, cfg), sources)
		},
	}
}

func execPrintConfig(o *IO, cfg config.Config, sources config.Sources) error {
	formatted, err := config.Format(cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)
	o.Println("")
	o.Println("# sources")

	if sources.Global == "" && sources.Explicit == "" {
		o.Println("(defaults only)")

		return nil
	}

	if sources.Global != "" {
		o.Println("global_config=" + sources.Global)
	}

	if sources.Explicit != "" {
		o.Println("explicit_config=" + sources.Explicit)
	}

	return nil
}

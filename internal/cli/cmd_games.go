package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/twpatch/internal/game"
)

// GamesCmd returns the games command.
func GamesCmd() *Command {
	return &Command{
		Flags:  flag.NewFlagSet("games", flag.ContinueOnError),
		Usage:  "games",
		Short:  "List supported game keys",
		NoArgs: true,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			for _, g := range game.All() {
				o.Printf("%-22s %s\n", g.Key, g.Name)
			}

			return nil
		},
	}
}

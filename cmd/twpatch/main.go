// Package main provides twpatch, which assembles the override archive a
// Total War game loads after every mod.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/calvinalkan/twpatch/internal/cli"
	"github.com/calvinalkan/twpatch/internal/config"
)

func main() {
	env := config.EnvironMap(os.Environ())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env, sigCh)

	os.Exit(exitCode)
}

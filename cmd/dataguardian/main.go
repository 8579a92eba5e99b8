package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	root := &cli.Command{
		Name:  "dataguardian",
		Usage: "Consent-governed data sharing server and tools",
		Commands: []*cli.Command{
			serveCommand(),
			inferCommand(),
			sweepCommand(),
			actorTokenCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

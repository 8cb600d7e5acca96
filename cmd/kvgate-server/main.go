// Command kvgate-server runs a Redis-compatible key-value server.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/kvgate-go/internal/infra/buildinfo"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// App builds the command-line application. serve is the default action.
func App() *cli.App {
	return &cli.App{
		Name:    "kvgate-server",
		Usage:   "Redis-compatible key-value server",
		Version: buildinfo.String(),
		Flags:   []cli.Flag{configFlag()},
		Action:  serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the server",
				Flags:  []cli.Flag{configFlag()},
				Action: serveAction,
			},
			walCommand(),
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, "kvgate-server "+buildinfo.String())
					return err
				},
			},
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		EnvVars: []string{"KVGATE_CONFIG"},
	}
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/kvgate-go/internal/protocol/resp"
	"github.com/yndnr/kvgate-go/internal/storage/wal"
)

func walCommand() *cli.Command {
	return &cli.Command{
		Name:  "wal",
		Usage: "Inspect the write-ahead log",
		Subcommands: []*cli.Command{
			{
				Name:  "dump",
				Usage: "Print logged commands in replay order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "WAL directory, usually <data_dir>/wal",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return dumpWAL(c.App.Writer, c.String("dir"))
				},
			},
		},
	}
}

// dumpWAL writes one line per record: sequence, Unix milliseconds and the
// quoted arguments. Records that fail to decode are reported inline.
func dumpWAL(w io.Writer, dir string) error {
	r, err := wal.NewReader(dir)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer r.Close()

	var line []byte
	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read wal: %w", err)
		}

		line = fmt.Appendf(line[:0], "%d %d", e.Seq, e.Timestamp)
		args, err := resp.DecodeCommand(e.Record)
		if err != nil {
			line = fmt.Appendf(line, " <undecodable: %v>", err)
		}
		for _, a := range args {
			line = append(line, ' ')
			line = resp.Quote(line, a)
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
}

package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) backup() error {
	path, err := cli.backups.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "backup written to %s\n", path)
	return nil
}

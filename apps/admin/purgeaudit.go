package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) purgeAudit(days int) error {
	n, err := cli.trail.Purge(context.Background(), systemActor, time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	cli.trail.Flush()
	fmt.Fprintf(cli.out, "deleted %d audit entries\n", n)
	return nil
}

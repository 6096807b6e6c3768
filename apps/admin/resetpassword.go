package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.users.GetByUsername(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.users.SetPassword(ctx, systemActor, usr, pwd)
	return err
}

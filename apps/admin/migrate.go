package main

import (
	"context"

	"github.com/trezcool/ada/storage/database"
)

func (cli *commandLine) migrate(command string, args ...string) error {
	return database.RunMigrations(context.Background(), cli.db, command, args...)
}

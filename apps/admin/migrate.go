package main

import (
	"github.com/trezcool/evalua/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db, cli.conf, cli.logger, args[0], args[1:]...)
}

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("migrations need the postgres engine")

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "migrate COMMAND [ARGS...]",
		Short:              "Run a goose migration command (up, down, status, version, ...)",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			if cli.c.DB == nil {
				return errNoDatabase
			}
			return migrateFunc(cli.c.DB.DB, args[0], args[1:]...)
		},
	}
}

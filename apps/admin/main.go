package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pqasys/langcsebkg5-sub007/apps/shared"
	"github.com/pqasys/langcsebkg5-sub007/core"
	logsvc "github.com/pqasys/langcsebkg5-sub007/services/logger"
)

func main() {
	if err := run(); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	conf := core.Conf
	local, err := logsvc.NewLocal(conf.Log, os.Stderr)
	if err != nil {
		return err
	}
	logger := logsvc.NewRollbarLogger(local, conf)
	defer logger.Flush()

	ctx := context.Background()
	c, err := shared.Open(ctx, conf, logger, false)
	if err != nil {
		return err
	}
	defer c.Close()

	cli := commandLine{c: c, out: os.Stdout}
	return cli.run(ctx, os.Args[1:])
}

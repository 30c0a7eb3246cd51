package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func (cli *commandLine) loadPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loadplans FILE",
		Short: "Create or update subscription plans from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := cli.c.Subscriptions.LoadPlans(cmd.Context(), f)
			if err != nil {
				return err
			}
			cli.printf("created: %s\n", strings.Join(res.Created, ", "))
			cli.printf("updated: %s\n", strings.Join(res.Updated, ", "))
			return nil
		},
	}
}

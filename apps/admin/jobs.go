package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pqasys/langcsebkg5-sub007/services/scheduler"
)

func (cli *commandLine) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect or run the periodic jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the jobs and their intervals",
			Args:  cobra.NoArgs,
			Run: func(*cobra.Command, []string) {
				for _, j := range cli.c.Jobs() {
					interval := "disabled"
					if j.Interval > 0 {
						interval = j.Interval.String()
					}
					cli.printf("%-22s %s\n", j.Name, interval)
				}
			},
		},
		&cobra.Command{
			Use:   "run JOB...",
			Short: "Run jobs once, now",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				jobs := make(map[string]scheduler.Job)
				for _, j := range cli.c.Jobs() {
					jobs[j.Name] = j
				}
				sched := scheduler.New(cli.c.Logger)
				for _, name := range args {
					j, ok := jobs[name]
					if !ok {
						return errors.Errorf("unknown job %q", name)
					}
					if err := sched.RunOnce(cmd.Context(), j, time.Now()); err != nil {
						return err
					}
					cli.printf("%s: done\n", name)
				}
				return nil
			},
		},
	)
	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
)

func (cli *commandLine) addTenantCmd() *cobra.Command {
	var nt tenant.NewTenant
	cmd := &cobra.Command{
		Use:   "addtenant",
		Short: "Register an institution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nt.Name == "" {
				_ = cmd.Usage()
				return errHelp
			}
			ctx := cmd.Context()
			if err := nt.Validate(ctx, cli.c.Tenants); err != nil {
				return err
			}
			t, err := cli.c.Tenants.Create(ctx, nt)
			if err != nil {
				return err
			}
			cli.printf("tenant %s created (%s)\n", t.Slug, t.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&nt.Name, "name", "", "institution name")
	f.StringVar(&nt.Slug, "slug", "", "unique slug; derived from the name when empty")
	f.StringVar(&nt.Email, "email", "", "contact email")
	return cmd
}

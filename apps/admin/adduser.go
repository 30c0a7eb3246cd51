package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

type addUserOpts struct {
	username string
	email    string
	name     string
	tenant   string // slug
	roles    []string
	staff    bool
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var opts addUserOpts
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the one matching the username or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.username == "" || opts.email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), opts, pwd)
			if err != nil {
				return err
			}
			cli.printf("user %s saved (%s)\n", usr.Username, usr.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.username, "username", "", "username")
	f.StringVar(&opts.email, "email", "", "email address")
	f.StringVar(&opts.name, "name", "", "display name")
	f.StringVar(&opts.tenant, "tenant", "", "slug of the user's institution")
	f.StringSliceVar(&opts.roles, "role", []string{user.RoleStudent}, "institution roles")
	f.BoolVar(&opts.staff, "staff", false, "platform staff account, not attached to an institution")
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, opts addUserOpts, pwd string) (user.User, error) {
	uname := core.CleanString(opts.username, true /* lower */)
	email := core.CleanString(opts.email, true /* lower */)
	if err := core.Validate.Var(email, "email"); err != nil {
		return user.User{}, errors.Errorf("invalid email %q", email)
	}

	usr, err := cli.c.Repos.Users.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.c.Repos.Users.GetUser(ctx, user.GetFilter{Email: email})
	}
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		usr = user.User{Username: uname, Email: email}
	case err != nil:
		return user.User{}, err
	}
	if name := core.CleanString(opts.name); name != "" {
		usr.Name = name
	}

	if opts.staff {
		usr.TenantID = ""
		usr.Roles = user.StaffRoles
	} else {
		if opts.tenant == "" {
			return user.User{}, errors.New("--tenant is required for institution users")
		}
		t, err := cli.c.Tenants.GetBySlug(ctx, core.CleanString(opts.tenant, true /* lower */))
		if err != nil {
			if errors.Cause(err) == tenant.ErrNotFound {
				return user.User{}, errors.Errorf("tenant %q not found", opts.tenant)
			}
			return user.User{}, err
		}
		for _, role := range opts.roles {
			if role == user.RoleStaff || !core.ContainsString(user.AllRoles, role) {
				return user.User{}, errors.Errorf("invalid role %q", role)
			}
		}
		usr.TenantID = t.ID
		usr.Roles = opts.roles
	}

	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	return cli.c.Repos.Users.UpdateOrCreateUser(ctx, usr)
}

package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/apps/shared"
	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	emailsvc "github.com/pqasys/langcsebkg5-sub007/services/email"
	logsvc "github.com/pqasys/langcsebkg5-sub007/services/logger"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := &core.Config{AppName: "Elimu", Env: "TEST", TestMode: true, SecretKey: "test-secret-key"}
	conf.Database.Engine = shared.EngineMemory

	local, err := logsvc.NewLocal(core.LogConfig{Level: "error"}, io.Discard)
	require.NoError(t, err)
	logger := logsvc.NewRollbarLogger(local, conf)

	c := shared.New(conf, logger, shared.MemoryRepositories(), emailsvc.NewConsoleServiceMock(conf, logger))
	t.Cleanup(func() { _ = c.Close() })

	var out bytes.Buffer
	return &commandLine{c: c, out: &out}, &out
}

func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.run(context.Background(), tt.args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_root(t *testing.T) {
	cli, _ := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol"`},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var calls [][]string
	orig := migrateFunc
	migrateFunc = func(_ *sql.DB, command string, args ...string) error {
		calls = append(calls, append([]string{command}, args...))
		return nil
	}
	t.Cleanup(func() { migrateFunc = orig })

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "memory engine", args: []string{"migrate", "up"}, wantErr: errNoDatabase},
	})
	assert.Empty(t, calls)
}

func Test_commandLine_addTenant(t *testing.T) {
	cli, out := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no name", args: []string{"addtenant"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"addtenant", "--name", "Green Hill", "--email", "lol"}, wantErrStr: "email"},
		{name: "slug from name", args: []string{"addtenant", "--name", "Green Hill Academy"}},
		{name: "duplicate slug", args: []string{"addtenant", "--name", "Other", "--slug", "green_hill_academy"}, wantErrStr: tenant.ErrSlugExists.Error()},
	})

	tnt, err := cli.c.Tenants.GetBySlug(context.Background(), "green_hill_academy")
	require.NoError(t, err)
	assert.Equal(t, "Green Hill Academy", tnt.Name)
	assert.Contains(t, out.String(), "tenant green_hill_academy created")
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	ctx := context.Background()
	tnt, err := cli.c.Tenants.Create(ctx, tenant.NewTenant{Name: "Green Hill", Slug: "green_hill"})
	require.NoError(t, err)

	runCLITests(t, cli, []cliTest{
		{name: "no username", args: []string{"adduser", "--email", "awe@test.cd"}, pwd: "lol", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--username", "awe", "--email", "awe@test.cd", "--staff"}, wantErr: errHelp},
		{name: "invalid email", args: []string{"adduser", "--username", "awe", "--email", "lol", "--staff"}, pwd: "lol", wantErrStr: "invalid email"},
		{name: "missing tenant", args: []string{"adduser", "--username", "awe", "--email", "awe@test.cd"}, pwd: "lol", wantErrStr: "--tenant is required"},
		{name: "unknown tenant", args: []string{"adduser", "--username", "awe", "--email", "awe@test.cd", "--tenant", "nope"}, pwd: "lol", wantErrStr: `tenant "nope" not found`},
		{name: "staff role on tenant", args: []string{"adduser", "--username", "awe", "--email", "awe@test.cd", "--tenant", "green_hill", "--role", user.RoleStaff}, pwd: "lol", wantErrStr: "invalid role"},
		{name: "staff", args: []string{"adduser", "--username", "Root", "--email", "root@test.cd", "--staff"}, pwd: "r00t"},
		{name: "teacher", args: []string{"adduser", "--username", "awe", "--email", "awe@test.cd", "--name", "Awe", "--tenant", "green_hill", "--role", user.RoleTeacher}, pwd: "lol"},
		{name: "update by email", args: []string{"adduser", "--username", "other", "--email", "AWE@test.cd", "--tenant", "green_hill", "--role", user.RoleAdmin + "," + user.RoleTeacher}, pwd: "lmao"},
	})

	staff, err := cli.c.Users.GetByUsernameOrEmail(ctx, "root")
	require.NoError(t, err)
	assert.True(t, staff.IsStaff())
	assert.Empty(t, staff.TenantID)
	assert.NoError(t, staff.CheckPassword("r00t"))

	usr, err := cli.c.Users.GetByUsernameOrEmail(ctx, "awe@test.cd")
	require.NoError(t, err)
	assert.Equal(t, "awe", usr.Username)
	assert.Equal(t, "Awe", usr.Name)
	assert.Equal(t, tnt.ID, usr.TenantID)
	assert.Equal(t, []string{user.RoleAdmin, user.RoleTeacher}, usr.Roles)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword("lmao"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	ctx := context.Background()

	orig := user.User{Username: "awe", Email: "awe@test.cd", Roles: user.StaffRoles}
	require.NoError(t, orig.SetPassword("mdr"))
	usr, err := cli.c.Repos.Users.CreateUser(ctx, orig)
	require.NoError(t, err)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, pwd: "lol", wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "--username", "awe"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "--username", usr.Username}, pwd: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "--username", usr.Email}, pwd: "lmao"},
	})

	refreshed, err := cli.c.Users.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_loadPlans(t *testing.T) {
	cli, out := setup(t)
	dir := t.TempDir()

	catalog := filepath.Join(dir, "plans.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(`plans:
  - name: Basic
    interval: month
    price: "19.99"
  - name: Pro
    interval: year
    price: "199"
`), 0o600))
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("plans:\n  - name: Basic\n    price: lol\n"), 0o600))

	runCLITests(t, cli, []cliTest{
		{name: "no file", args: []string{"loadplans"}, wantErrStr: "accepts 1 arg(s)"},
		{name: "missing file", args: []string{"loadplans", filepath.Join(dir, "nope.yaml")}, wantErrStr: "no such file"},
		{name: "invalid price", args: []string{"loadplans", broken}, wantErrStr: "invalid amount"},
		{name: "create", args: []string{"loadplans", catalog}},
		{name: "update", args: []string{"loadplans", catalog}},
	})

	plans, err := cli.c.Subscriptions.QueryPlans(context.Background(), &subscription.PlanFilter{})
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Basic", plans[0].Name)
	assert.Equal(t, "19.99", plans[0].Price.StringFixed(2))
	assert.Contains(t, out.String(), "created: Basic, Pro")
	assert.Contains(t, out.String(), "updated: Basic, Pro")
}

func Test_commandLine_jobs(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "list", args: []string{"jobs", "list"}},
		{name: "run without job", args: []string{"jobs", "run"}, wantErrStr: "requires at least 1 arg(s)"},
		{name: "unknown job", args: []string{"jobs", "run", "lol"}, wantErrStr: `unknown job "lol"`},
		{name: "run", args: []string{"jobs", "run", "evaluate_alerts", "payment_warnings", "deactivate_tenants", "notification_digests"}},
	})

	assert.Regexp(t, `payment_warnings\s+disabled`, out.String())
	assert.Contains(t, out.String(), "notification_digests: done")
}

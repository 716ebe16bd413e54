package main

import (
	"bytes"
	"context"
	"net/mail"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
	appfs "github.com/trezcool/evalua/fs"
	emailsvc "github.com/trezcool/evalua/services/email"
	sqlxrepos "github.com/trezcool/evalua/storage/database/sqlx"
	"github.com/trezcool/evalua/tests"
)

type env struct {
	cli       *commandLine
	out       *bytes.Buffer
	mail      *emailsvc.ConsoleServiceMock
	usrRepo   user.Repository
	staffRepo staff.Repository
	themeRepo theme.Repository
	evalRepo  evaluation.Repository
}

func setup(t *testing.T) *env {
	// set up DB & repos
	db, conf := testutil.OpenDB(t)
	e := &env{
		out:       new(bytes.Buffer),
		mail:      emailsvc.NewConsoleServiceMock(conf, testutil.NopLogger{}),
		usrRepo:   sqlxrepos.NewUserRepository(db),
		staffRepo: sqlxrepos.NewStaffRepository(db),
		themeRepo: sqlxrepos.NewThemeRepository(db),
		evalRepo:  sqlxrepos.NewEvaluationRepository(db),
	}
	core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, testutil.NopLogger{})
	validate, translator := testutil.NewValidator()

	// start CLI
	staffSvc := staff.NewService(e.staffRepo, nil)
	themeSvc := theme.NewService(e.themeRepo, e.evalRepo, nil)
	e.cli = &commandLine{
		conf:       conf,
		db:         db,
		logger:     testutil.NopLogger{},
		out:        e.out,
		mailSvc:    e.mail,
		validate:   validate,
		translator: translator,
		usrRepo:    e.usrRepo,
		staffSvc:   staffSvc,
		themeSvc:   themeSvc,
		evalSvc:    evaluation.NewService(e.evalRepo, staffSvc, themeSvc, nil, conf.FollowUpMonths),
	}
	return e
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		assert.EqualError(t, err, tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func mockNow(t *testing.T, now time.Time) {
	orig := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = orig })
}

func Test_commandLine_help(t *testing.T) {
	e := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, e.out.String(), "remindfollowups")
}

func Test_commandLine_migrate(t *testing.T) {
	e := setup(t)

	type call struct {
		command string
		args    []string
	}
	var calls []call
	orig := migrateFunc
	migrateFunc = func(_ *sqlx.DB, _ *core.Config, _ core.Logger, command string, args ...string) error {
		calls = append(calls, call{command, args})
		return nil
	}
	t.Cleanup(func() { migrateFunc = orig })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "up", args: []string{"migrate", "up"}, extra: call{command: "up", args: []string{}}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, extra: call{command: "up-to", args: []string{"2"}}},
		{name: "status", args: []string{"migrate", "status"}, extra: call{command: "status", args: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = nil
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))
			if want, ok := tt.extra.(call); ok {
				require.Len(t, calls, 1)
				assert.Equal(t, want.command, calls[0].command)
				assert.ElementsMatch(t, want.args, calls[0].args)
			} else {
				assert.Empty(t, calls)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	e := setup(t)

	t.Run("usage", func(t *testing.T) {
		mockPassword(t, "")
		for _, args := range [][]string{
			{"adduser"},
			{"adduser", "-username", "awa"},
			{"adduser", "-username", "awa", "-email", "awa@test.cd"}, // no password
		} {
			assert.ErrorIs(t, e.cli.run(append([]string{"admin"}, args...)), errHelp)
		}
	})

	mockPassword(t, "s3cret!")
	require.NoError(t, e.cli.run([]string{"admin", "adduser", "-username", "Awa", "-email", "AWA@test.cd"}))

	usr, err := e.usrRepo.GetUserByUsernameOrEmail(context.Background(), "awa")
	require.NoError(t, err)
	assert.Equal(t, "awa", usr.Name)
	assert.Equal(t, "awa@test.cd", usr.Email)
	assert.Equal(t, []string{user.RoleViewer}, usr.Roles)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("s3cret!"))

	// existing users are updated
	mockPassword(t, "n3w-s3cret!")
	require.NoError(t, e.cli.run([]string{"admin", "adduser", "-username", "other", "-email", "awa@test.cd", "-admin"}))

	updated, err := e.usrRepo.GetUserByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleAdmin}, updated.Roles)
	assert.NoError(t, updated.CheckPassword("n3w-s3cret!"))

	all, err := e.usrRepo.QueryUsers(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func Test_commandLine_resetPassword(t *testing.T) {
	e := setup(t)

	usr := testutil.CreateUser(t, e.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pwd string
			if ex, ok := tt.extra.(extra); ok {
				pwd = ex.pwd
			}
			mockPassword(t, pwd)

			err := e.cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := e.usrRepo.GetUserByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_importStaff(t *testing.T) {
	e := setup(t)

	testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "amina@test.cd", "Kinshasa")
	path := filepath.Join(t.TempDir(), "staff.csv")
	content := "Nom complet,Courriel,Fonction\nAmina Diallo,amina@test.cd,Nurse\nJean Pierre Kabila,,Doctor\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tests := []cliTest{
		{name: "no file", args: []string{"importstaff"}, wantErr: errHelp},
		{name: "missing file", args: []string{"importstaff", "-file", filepath.Join(t.TempDir(), "nope.csv")}, wantErr: os.ErrNotExist},
		{name: "dry run", args: []string{"importstaff", "-file", path, "-dryrun"}, extra: 1},
		{name: "import", args: []string{"importstaff", "-file", path}, extra: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.out.Reset()
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))

			if want, ok := tt.extra.(int); ok {
				all, err := e.staffRepo.QueryStaff(context.Background(), nil, nil)
				require.NoError(t, err)
				assert.Len(t, all, want)
				assert.Contains(t, e.out.String(), "2 rows: 1 created, 0 updated, 1 skipped, 0 errors")
			}
		})
	}

	jean, err := e.staffRepo.QueryStaff(context.Background(), &staff.QueryFilter{Search: "kabila"}, nil)
	require.NoError(t, err)
	require.Len(t, jean, 1)
	assert.Equal(t, "Jean", jean[0].FirstName)
	assert.Equal(t, "Pierre Kabila", jean[0].LastName)
	assert.Equal(t, "Doctor", jean[0].Position)
}

func createDueFollowUp(t *testing.T, e *env) (staff.Staff, theme.Theme) {
	amina := testutil.CreateStaff(t, e.staffRepo, "Amina", "Diallo", "", "Goma")
	hygiene := testutil.CreateTheme(t, e.themeRepo, "Hygiene")
	testutil.CreateEvaluation(t, e.evalRepo, evaluation.Evaluation{
		StaffID: amina.ID, ThemeID: hygiene.ID, Kind: evaluation.KindInitial, Status: evaluation.StatusCompleted,
		TrainingDate:   time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		EvaluationDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Scores:         testutil.FullScores(evaluation.KindInitial, 4),
	})
	return amina, hygiene
}

func Test_commandLine_export(t *testing.T) {
	e := setup(t)
	mockNow(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	createDueFollowUp(t, e)
	dir := t.TempDir()

	tests := []cliTest{
		{name: "usage", args: []string{"export", "-kind", "staff"}, wantErr: errHelp},
		{name: "unknown kind", args: []string{"export", "-kind", "lol", "-out", filepath.Join(dir, "lol.xlsx")}, wantErr: errUnknownKind},
		{name: "staff", args: []string{"export", "-kind", "staff", "-out", filepath.Join(dir, "staff.xlsx")}, extra: "staff.xlsx"},
		{name: "evaluations", args: []string{"export", "-kind", "evaluations", "-out", filepath.Join(dir, "evals.xlsx")}, extra: "evals.xlsx"},
		{name: "followups", args: []string{"export", "-kind", "followups", "-out", filepath.Join(dir, "due.xlsx")}, extra: "due.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, e.cli.run(append([]string{"admin"}, tt.args...)))

			if name, ok := tt.extra.(string); ok {
				f, err := excelize.OpenFile(filepath.Join(dir, name))
				require.NoError(t, err)
				defer func() { _ = f.Close() }()
				rows, err := f.GetRows(f.GetSheetName(0))
				require.NoError(t, err)
				assert.Len(t, rows, 2, "header + 1 row")
			}
		})
	}
}

func Test_commandLine_remindFollowUps(t *testing.T) {
	e := setup(t)
	mockNow(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	e.cli.conf.ReminderRecipients = nil
	assert.ErrorIs(t, e.cli.run([]string{"admin", "remindfollowups"}), errNoRecipients)

	e.cli.conf.ReminderRecipients = []mail.Address{{Name: "Coordinator", Address: "coord@test.cd"}}
	require.NoError(t, e.cli.run([]string{"admin", "remindfollowups"}))
	assert.Contains(t, e.out.String(), "no follow-up due")
	assert.Empty(t, e.mail.Sent())

	createDueFollowUp(t, e)
	require.NoError(t, e.cli.run([]string{"admin", "remindfollowups", "-within", "15"}))

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "1 follow-up evaluation(s) due", msg.Subject)
	assert.Equal(t, e.cli.conf.ReminderRecipients, msg.To)
	assert.Contains(t, msg.TextContent, "Amina Diallo / Hygiene: due 2026-07-10")
	assert.Contains(t, msg.TextContent, "due by 2026-07-16")
	assert.Contains(t, msg.HTMLContent, "Amina Diallo")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "followups-20260701.xlsx", msg.Attachments[0].Filename)
}

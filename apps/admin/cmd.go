package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
)

var (
	// mockable
	readPasswordFunc = term.ReadPassword
	timeNow          = func() time.Time { return time.Now().UTC() }

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	logger     core.Logger
	out        io.Writer
	mailSvc    core.EmailService
	validate   *validator.Validate
	translator ut.Translator

	usrRepo  user.Repository
	staffSvc *staff.Service
	themeSvc *theme.Service
	evalSvc  *evaluation.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] - create or update an active user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL                  - reset user's password")
	fmt.Fprintln(cli.out, "  importstaff -file FILE [-update] [-dryrun]              - import staff from a spreadsheet")
	fmt.Fprintln(cli.out, "  export -kind staff|evaluations|followups -out FILE      - export a spreadsheet")
	fmt.Fprintln(cli.out, "  remindfollowups [-within DAYS]                          - email the due follow-ups")
}

// promptPassword reads a password from the terminal, without echo.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's name (defaults to the username).")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	importCmd := flag.NewFlagSet("importstaff", flag.ContinueOnError)
	importFile := importCmd.String("file", "", "The spreadsheet to import (.xlsx, .xls or .csv).")
	importUpdate := importCmd.Bool("update", false, "Update the matching staff instead of skipping them.")
	importDryRun := importCmd.Bool("dryrun", false, "Report what would be imported without saving.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportKind := exportCmd.String("kind", "", "What to export: staff, evaluations or followups.")
	exportOut := exportCmd.String("out", "", "The .xlsx file to write.")
	exportWithin := exportCmd.Int("within", defaultDueWithinDays, "Follow-ups due within that many days.")

	remindCmd := flag.NewFlagSet("remindfollowups", flag.ContinueOnError)
	remindWithin := remindCmd.Int("within", defaultDueWithinDays, "Follow-ups due within that many days.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, importCmd, exportCmd, remindCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "importstaff":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importStaff(*importFile, *importUpdate, *importDryRun)

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportKind == "" || *exportOut == "" {
			exportCmd.Usage()
			return errHelp
		}
		return cli.export(*exportKind, *exportOut, *exportWithin)

	case "remindfollowups":
		if err := remindCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.remindFollowUps(*remindWithin)

	default:
		cli.printUsage()
		return errHelp
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/rate"
	"github.com/trezcool/ada/core/user"
	backupsvc "github.com/trezcool/ada/services/backup"
)

// CLI actions are recorded on the audit trail as the system actor.
const systemActor int64 = 0

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	db      *sqlx.DB
	out     io.Writer
	users   *user.Service
	rates   *rate.Service
	trail   *audit.Trail
	backups *backupsvc.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                      - run a goose command (up, down, status, version, redo, reset, up-to N, down-to N)")
	fmt.Fprintln(cli.out, "  adduser -username U -name N [-email E] [-admin] - create a clerk (or admin) account")
	fmt.Fprintln(cli.out, "  resetpassword -username U                   - reset a user's password")
	fmt.Fprintln(cli.out, "  setrate -commodity C -rate R                - set the cash rate per kg of a commodity")
	fmt.Fprintln(cli.out, "  backup                                      - snapshot the database (and upload it to S3 if configured)")
	fmt.Fprintln(cli.out, "  purgeaudit [-days N]                        - delete audit entries older than N days")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email (optional).")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username. The password will be prompted next.")

	setRateCmd := flag.NewFlagSet("setrate", flag.ContinueOnError)
	setRateCommodity := setRateCmd.String("commodity", "", "The commodity, e.g. maize.")
	setRateValue := setRateCmd.String("rate", "", "The cash value of one kg, e.g. 30.")

	purgeAuditCmd := flag.NewFlagSet("purgeaudit", flag.ContinueOnError)
	purgeAuditDays := purgeAuditCmd.Int("days", cli.conf.Ledger.AuditRetentionDays, "Retention in days.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, setRateCmd, purgeAuditCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserName == "" {
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
		return cli.addUser(*addUserUname, *addUserName, *addUserEmail, pwd, *addUserAdmin)

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

	case "setrate":
		if err := setRateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setRateCommodity == "" || *setRateValue == "" {
			setRateCmd.Usage()
			return errHelp
		}
		return cli.setRate(*setRateCommodity, *setRateValue)

	case "backup":
		return cli.backup()

	case "purgeaudit":
		if err := purgeAuditCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.purgeAudit(*purgeAuditDays)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

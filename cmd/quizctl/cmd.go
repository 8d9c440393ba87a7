package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/mind-engage/mindengage-quiz/internal/assessment"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/password"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	users *auth.Users
	svc   *assessment.Service
	out   io.Writer
}

func newCommandLine(db *sql.DB, out io.Writer) *commandLine {
	return &commandLine{
		users: auth.NewUsers(db, false),
		svc:   assessment.NewService(assessment.NewSQLStore(db), scoring.NewSQLDelegate(db)),
		out:   out,
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  useradd -email EMAIL -name NAME [-role STUDENT|TEACHER] - create a profile; the password is prompted")
	fmt.Fprintln(cli.out, "  deactivate -email EMAIL [-undo] - mark a profile inactive (or active again)")
	fmt.Fprintln(cli.out, "  hash-password - print an assessment access password hash; the password is prompted")
	fmt.Fprintln(cli.out, "  unpublish-ended - unpublish every assessment whose end time has passed")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	useraddCmd := flag.NewFlagSet("useradd", flag.ContinueOnError)
	useraddEmail := useraddCmd.String("email", "", "Login email")
	useraddName := useraddCmd.String("name", "", "Display name")
	useraddRole := useraddCmd.String("role", string(rbac.RoleStudent), "STUDENT or TEACHER")

	deactivateCmd := flag.NewFlagSet("deactivate", flag.ContinueOnError)
	deactivateEmail := deactivateCmd.String("email", "", "Login email")
	deactivateUndo := deactivateCmd.Bool("undo", false, "Reactivate instead")

	switch args[1] {
	case "useradd":
		if err := useraddCmd.Parse(args[2:]); err != nil {
			return err
		}
		role := rbac.ParseRole(*useraddRole)
		if *useraddEmail == "" || (role != rbac.RoleStudent && role != rbac.RoleTeacher) {
			useraddCmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt()
		if err != nil {
			return err
		}
		id, err := cli.users.Create(ctx, *useraddEmail, pwd, *useraddName, role)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s (%s) %s\n", id.Email, id.Role, id.Subject)
		return nil

	case "deactivate":
		if err := deactivateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *deactivateEmail == "" {
			deactivateCmd.Usage()
			return errHelp
		}
		return cli.users.SetActive(ctx, *deactivateEmail, *deactivateUndo)

	case "hash-password":
		pwd, err := cli.prompt()
		if err != nil {
			return err
		}
		h, err := password.Hash(pwd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, h)
		return nil

	case "unpublish-ended":
		n, err := cli.svc.UnpublishEnded(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "unpublished %d assessment(s)\n", n)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) prompt() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}

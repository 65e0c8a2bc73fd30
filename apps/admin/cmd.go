package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/mahudhurio/core/student"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db   *sql.DB
	repo student.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args] - manage database migrations (goose commands)")
	fmt.Println("  hashpassword - hash the admin password for deployment. The password will be prompted next.")
	fmt.Println("  promotesemester -yes - promote all students to the next semester and reset their attendance")
	fmt.Println("  resetdata -yes - reset all attendance data, keeping student registrations")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	promoteCmd := flag.NewFlagSet("promotesemester", flag.ExitOnError)
	promoteYes := promoteCmd.Bool("yes", false, "Confirm the promotion; it cannot be undone.")

	resetCmd := flag.NewFlagSet("resetdata", flag.ExitOnError)
	resetYes := resetCmd.Bool("yes", false, "Confirm the reset; it cannot be undone.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "hashpassword":
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cli.printUsage()
			return errHelp
		}
		return cli.hashPassword(string(pwd))
	case "promotesemester":
		if err := promoteCmd.Parse(args[2:]); err != nil {
			return err
		}
		if !*promoteYes {
			promoteCmd.Usage()
			return errHelp
		}
		return cli.promoteSemester()
	case "resetdata":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return err
		}
		if !*resetYes {
			resetCmd.Usage()
			return errHelp
		}
		return cli.resetData()
	default:
		cli.printUsage()
		return errHelp
	}
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/nyumbani/core/room"
	"github.com/trezcool/nyumbani/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	usrRepo  user.Repository
	roomRepo room.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run DB migrations (goose commands)")
	fmt.Println("  createadmin -name NAME -email EMAIL - create or promote an admin. The password will be prompted next.")
	fmt.Println("  addroom -number NUMBER -type TYPE -capacity N [-floor N] [-block BLOCK] - register a room")
	fmt.Println("  resetpassword -email EMAIL - reset a user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createAdminCmd := flag.NewFlagSet("createadmin", flag.ExitOnError)
	createAdminName := createAdminCmd.String("name", "", "The admin's full name.")
	createAdminEmail := createAdminCmd.String("email", "", "The admin's email. The password will be prompted next.")

	addRoomCmd := flag.NewFlagSet("addroom", flag.ExitOnError)
	addRoomNumber := addRoomCmd.String("number", "", "The room number.")
	addRoomType := addRoomCmd.String("type", "", "The room type: single, double, triple or quad.")
	addRoomCapacity := addRoomCmd.Int("capacity", 0, "The room capacity.")
	addRoomFloor := addRoomCmd.Int("floor", 0, "The room floor.")
	addRoomBlock := addRoomCmd.String("block", "", "The room block.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "createadmin":
		if err := createAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createAdminName == "" || *createAdminEmail == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		return cli.createAdmin(*createAdminName, *createAdminEmail, pwd)
	case "addroom":
		if err := addRoomCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addRoomNumber == "" || *addRoomType == "" || *addRoomCapacity <= 0 {
			addRoomCmd.Usage()
			return errHelp
		}
		return cli.addRoom(*addRoomNumber, *addRoomType, *addRoomBlock, *addRoomCapacity, *addRoomFloor)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
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
		return cli.resetPassword(*resetPasswordEmail, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

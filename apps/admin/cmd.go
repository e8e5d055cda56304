package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// migrator runs schema migration commands against the configured engine.
type migrator interface {
	RunMigration(ctx context.Context, command string) error
}

// newValidator returns the validator the commands check their input with.
func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

type commandLine struct {
	conf     *core.Config
	usrSvc   *user.Service
	validate *validator.Validate
	migrator migrator
	out      io.Writer
}

func (cli *commandLine) rootCommand(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Lumos portal administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetContext(ctx)

	seedCmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the configured admin (ADMIN_EMAIL, ADMIN_PASSWORD, ADMIN_NAME) unless it exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.seedAdmin(cmd.Context())
		},
	}

	var login string
	resetPasswordCmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Reset a user's password; the password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if core.CleanString(login) == "" {
				_ = cmd.Usage()
				return errHelp
			}
			fmt.Fprint(cli.out, "Enter password:")
			pwd, err := readPasswordFunc(int(syscall.Stdin))
			fmt.Fprintln(cli.out)
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return cli.resetPassword(cmd.Context(), login, string(pwd))
		},
	}
	resetPasswordCmd.Flags().StringVar(&login, "login", "", "The user's student ID or email")

	var file, defaultPassword string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create students from a CSV file; existing login keys are skipped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				_ = cmd.Usage()
				return errHelp
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return cli.importStudents(cmd.Context(), f, defaultPassword)
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "Path to the CSV file; the first row is the header")
	importCmd.Flags().StringVar(&defaultPassword, "default-password", "", "Password of the created students (IMPORT_DEFAULT_PASSWORD by default)")

	migrateCmd := &cobra.Command{
		Use:   "migrate COMMAND [ARGS]",
		Short: "Run a database migration command (up, down, status, version, ...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return cli.migrator.RunMigration(cmd.Context(), args[0])
		},
	}

	root.AddCommand(seedCmd, resetPasswordCmd, importCmd, migrateCmd)
	return root
}

// run executes the command line args, program name included.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCommand(context.Background())
	if len(args) < 2 {
		_ = root.Usage()
		return errHelp
	}
	if cmd, _, err := root.Find(args[1:]); err != nil || cmd == root {
		_ = root.Usage()
		return errHelp
	}

	root.SetArgs(args[1:])
	return root.Execute()
}

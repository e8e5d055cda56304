package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core/user"
)

// seedAdmin creates the configured admin, with teacher rights, when its email is free.
func (cli *commandLine) seedAdmin(ctx context.Context) error {
	seed := cli.conf.Seed
	if _, err := cli.usrSvc.GetByEmail(ctx, seed.Email); err == nil {
		fmt.Fprintf(cli.out, "Admin %s already exists\n", seed.Email)
		return nil
	} else if errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "finding admin")
	}

	nu := user.NewUser{Email: seed.Email, Password: seed.Password, Name: seed.Name, Role: user.RoleAdmin, IsTeacher: true}
	if err := nu.Validate(cli.validate); err != nil {
		return errors.Wrap(err, "invalid admin seed")
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return errors.Wrap(err, "creating admin")
	}
	fmt.Fprintf(cli.out, "Admin %s created\n", usr.Email)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, login, pwd string) error {
	usr, err := cli.usrSvc.GetByLoginKey(ctx, login)
	if err != nil {
		return err
	}
	return cli.usrSvc.ResetPassword(ctx, usr.ID, pwd)
}

func (cli *commandLine) importStudents(ctx context.Context, r io.Reader, defaultPassword string) error {
	rows, err := user.ParseImportCSV(r)
	if err != nil {
		return err
	}
	if defaultPassword == "" {
		defaultPassword = cli.conf.Import.DefaultPassword
	}

	res := cli.usrSvc.Import(ctx, rows, defaultPassword)
	fmt.Fprintf(cli.out, "created: %d, skipped: %d, errors: %d\n", len(res.Created), len(res.Skipped), len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(cli.out, "  %v: %s\n", e.Row, e.Message)
	}
	return nil
}

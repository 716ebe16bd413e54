package main

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if errors.Is(err, user.ErrNotFound) {
		usr, err = cli.usrRepo.GetUserByUsernameOrEmail(ctx, email)
	}
	exists := err == nil
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	if !exists {
		usr = user.User{
			Name:      name,
			Username:  uname,
			Email:     email,
			Roles:     []string{user.RoleViewer},
			CreatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = []string{user.RoleAdmin}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}

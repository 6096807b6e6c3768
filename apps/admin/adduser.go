package main

import (
	"context"
	"fmt"

	"github.com/trezcool/ada/core/user"
)

func (cli *commandLine) addUser(uname, name, email, pwd string, isAdmin bool) error {
	roles := []string{user.RoleClerk}
	if isAdmin {
		roles = user.AllRoles
	}
	usr, err := cli.users.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created user %s (#%d)\n", usr.Username, usr.ID)
	return nil
}

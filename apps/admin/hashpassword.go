package main

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/auth"
)

// hashPassword validates the password against the policy and prints the bcrypt
// hash to be set as ADMINPASSWORDHASH in the deployment environment.
func (cli *commandLine) hashPassword(pwd string) error {
	if err := auth.ValidatePassword(pwd, core.Conf.AdminUsername); err != nil {
		if vErr, ok := err.(*core.ValidationError); ok && len(vErr.Fields) > 0 {
			return errors.New(vErr.Fields[0].Error)
		}
		return err
	}

	hash, err := auth.HashPassword(pwd)
	if err != nil {
		return err
	}
	fmt.Println("Set this as ADMINPASSWORDHASH:")
	fmt.Println(hash)
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/trezcool/mahudhurio/core/student"
)

func (cli *commandLine) promoteSemester() error {
	n, err := cli.repo.PromoteSemester(context.Background())
	if err != nil {
		return err
	}
	if n == 0 {
		return student.ErrNoStudents
	}
	fmt.Printf("%d students promoted to the next semester\n", n)
	return nil
}

func (cli *commandLine) resetData() error {
	n, err := cli.repo.ResetAllData(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("attendance data reset for %d students\n", n)
	return nil
}

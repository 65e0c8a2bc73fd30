package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/student"
	"github.com/trezcool/mahudhurio/storage/database/dummy"
)

func setup(t *testing.T) (*commandLine, student.Repository) {
	t.Helper()
	core.Conf = &core.Config{AppName: "Mahudhurio", AdminUsername: "admin"}

	repo := dummy.NewStudentRepository()
	return &commandLine{repo: repo}, repo
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}
}

func Test_commandLine_hashPassword(t *testing.T) {
	cli, _ := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no password", args: []string{"hashpassword"}, wantErr: errHelp},
		{
			name: "weak password", args: []string{"hashpassword"}, extra: extra{pwd: "short"},
			wantErrStr: "password must contain at least 8 characters",
		},
		{
			name: "all numeric password", args: []string{"hashpassword"}, extra: extra{pwd: "12345678901"},
			wantErrStr: "password cannot be entirely numeric",
		},
		{
			name: "similar to username", args: []string{"hashpassword"}, extra: extra{pwd: "Admin.1a"},
			wantErrStr: "password cannot be similar to the username",
		},
		{name: "good password", args: []string{"hashpassword"}, extra: extra{pwd: "G00d.Pass!word"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}
}

func Test_commandLine_promoteSemester(t *testing.T) {
	cli, repo := setup(t)

	t.Run("confirmation required", func(t *testing.T) {
		checkCLIErr(t, cli.run([]string{"admin", "promotesemester"}), cliTest{wantErr: errHelp})
	})

	t.Run("no students", func(t *testing.T) {
		checkCLIErr(t, cli.run([]string{"admin", "promotesemester", "-yes"}), cliTest{wantErr: student.ErrNoStudents})
	})

	t.Run("promotes and resets", func(t *testing.T) {
		_, err := repo.CreateStudent(context.Background(), student.Student{
			RollNo: "CS101", Name: "Asha Komba", Year: 2, Semester: 3,
			LateDays: 12, Status: student.StatusGracePeriod, UpdatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("seeding student: %v", err)
		}

		checkCLIErr(t, cli.run([]string{"admin", "promotesemester", "-yes"}), cliTest{})

		s, err := repo.GetStudent(context.Background(), "CS101")
		if err != nil {
			t.Fatalf("getting student: %v", err)
		}
		if s.Semester != 4 {
			t.Errorf("semester = %d, want 4", s.Semester)
		}
		if s.LateDays != 0 || s.Status != student.StatusNormal {
			t.Errorf("attendance not reset: lateDays=%d status=%s", s.LateDays, s.Status)
		}
	})
}

func Test_commandLine_resetData(t *testing.T) {
	cli, repo := setup(t)

	_, err := repo.CreateStudent(context.Background(), student.Student{
		RollNo: "CS101", Name: "Asha Komba", Year: 2, Semester: 3,
		LateDays: 15, Fines: 5, Status: student.StatusFined,
	})
	if err != nil {
		t.Fatalf("seeding student: %v", err)
	}

	t.Run("confirmation required", func(t *testing.T) {
		checkCLIErr(t, cli.run([]string{"admin", "resetdata"}), cliTest{wantErr: errHelp})
	})

	t.Run("resets attendance only", func(t *testing.T) {
		checkCLIErr(t, cli.run([]string{"admin", "resetdata", "-yes"}), cliTest{})

		s, err := repo.GetStudent(context.Background(), "CS101")
		if err != nil {
			t.Fatalf("getting student: %v", err)
		}
		if s.Semester != 3 {
			t.Errorf("semester = %d, want 3", s.Semester)
		}
		if s.LateDays != 0 || s.Fines != 0 {
			t.Errorf("attendance not reset: lateDays=%d fines=%d", s.LateDays, s.Fines)
		}
	})
}

func checkCLIErr(t *testing.T, err error, tt cliTest) {
	t.Helper()
	if err != nil {
		if tt.wantErr != nil {
			if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		} else if tt.wantErrStr != "" {
			if err.Error() != tt.wantErrStr {
				t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
			}
		} else {
			t.Errorf("cli.run() unexpected error = %v", err)
		}
	} else if tt.wantErr != nil || tt.wantErrStr != "" {
		t.Errorf("cli.run() expected error %v%s, got nil", tt.wantErr, tt.wantErrStr)
	}
}

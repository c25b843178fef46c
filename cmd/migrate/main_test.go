package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shiftlab/internal/storage/postgres"
)

type fakeMigrator struct {
	calls  []string
	state  postgres.MigrationState
	upErr  error
	closed bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up:"+strconv.Itoa(steps))
	return f.upErr
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down:"+strconv.Itoa(steps))
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	f.calls = append(f.calls, "status")
	return f.state, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func withFakeStore(t *testing.T, fake *fakeMigrator) *string {
	t.Helper()
	var gotDSN string
	previous := openStore
	openStore = func(_ context.Context, dsn string) (migrator, error) {
		gotDSN = dsn
		return fake, nil
	}
	t.Cleanup(func() { openStore = previous })
	return &gotDSN
}

func TestRun_Directions(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		calls []string
	}{
		{name: "up all", args: []string{"-dsn=pg://x"}, calls: []string{"up:0", "status"}},
		{name: "up steps", args: []string{"-direction=up", "-steps=2", "-dsn=pg://x"}, calls: []string{"up:2", "status"}},
		{name: "down default", args: []string{"-direction=DOWN", "-dsn=pg://x"}, calls: []string{"down:1", "status"}},
		{name: "status", args: []string{"-direction=status", "-dsn=pg://x"}, calls: []string{"status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMigrator{state: postgres.MigrationState{Version: 3, Applied: 3}}
			dsn := withFakeStore(t, fake)

			var out bytes.Buffer
			if err := run(context.Background(), tt.args, &out, &bytes.Buffer{}); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if strings.Join(fake.calls, ",") != strings.Join(tt.calls, ",") {
				t.Fatalf("unexpected calls %v, want %v", fake.calls, tt.calls)
			}
			if !fake.closed {
				t.Fatal("store must be closed")
			}
			if *dsn != "pg://x" {
				t.Fatalf("unexpected dsn %q", *dsn)
			}
			if !strings.Contains(out.String(), "version=3 applied=3 pending=0") {
				t.Fatalf("unexpected output %q", out.String())
			}
		})
	}
}

func TestRun_DSNFromEnvironment(t *testing.T) {
	t.Setenv(dsnEnv, " pg://from-env ")
	fake := &fakeMigrator{}
	dsn := withFakeStore(t, fake)

	if err := run(context.Background(), []string{"-direction=status"}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if *dsn != "pg://from-env" {
		t.Fatalf("unexpected dsn %q", *dsn)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Setenv(dsnEnv, "")
	fake := &fakeMigrator{upErr: errors.New("syntax error")}
	withFakeStore(t, fake)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing dsn", args: []string{"-direction=status"}, want: "is required"},
		{name: "bad direction", args: []string{"-direction=sideways", "-dsn=pg://x"}, want: "unsupported direction"},
		{name: "negative steps", args: []string{"-steps=-1", "-dsn=pg://x"}, want: "steps must be"},
		{name: "migration failure", args: []string{"-dsn=pg://x"}, want: "migrate up failed: syntax error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, &bytes.Buffer{}, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRun_AgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("SHIFTLAB_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("SHIFTLAB_POSTGRES_TEST_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	store, err := postgres.Open(ctx, dsn)
	cancel()
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	_ = store.Close()

	for _, direction := range []string{"status", "up", "down", "up"} {
		var out bytes.Buffer
		if err := run(context.Background(), []string{"-direction=" + direction, "-dsn=" + dsn}, &out, &bytes.Buffer{}); err != nil {
			t.Fatalf("%s failed: %v", direction, err)
		}
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

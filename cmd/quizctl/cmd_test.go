package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/password"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := db.Open(ctx, db.DriverSQLite, fmt.Sprintf("file:cli-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	readPasswordFunc = func(int) ([]byte, error) { return []byte("hunter2hunter2"), nil }
	var out bytes.Buffer
	return newCommandLine(h, &out), &out
}

func TestUseraddAndDeactivate(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run([]string{"quizctl", "useradd", "-email", "t@example.com", "-name", "T", "-role", "TEACHER"}))
	require.Contains(t, out.String(), "t@example.com (TEACHER)")

	id, err := cli.users.Authenticate(ctx, "t@example.com", "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleTeacher, id.Role)

	require.NoError(t, cli.run([]string{"quizctl", "deactivate", "-email", "t@example.com"}))
	_, err = cli.users.Authenticate(ctx, "t@example.com", "hunter2hunter2")
	require.Error(t, err)

	require.Error(t, cli.run([]string{"quizctl", "deactivate", "-email", "ghost@example.com"}))
}

func TestUsageErrors(t *testing.T) {
	cli, _ := setup(t)
	for _, args := range [][]string{
		{"quizctl"},
		{"quizctl", "nope"},
		{"quizctl", "useradd"},
		{"quizctl", "useradd", "-email", "x@example.com", "-role", "ADMIN"},
	} {
		require.ErrorIs(t, cli.run(args), errHelp, strings.Join(args, " "))
	}
}

func TestHashPasswordAndUnpublish(t *testing.T) {
	cli, out := setup(t)
	require.NoError(t, cli.run([]string{"quizctl", "hash-password"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	hash := strings.TrimSpace(lines[len(lines)-1])
	require.True(t, password.Verify("hunter2hunter2", hash))

	out.Reset()
	require.NoError(t, cli.run([]string{"quizctl", "unpublish-ended"}))
	require.Contains(t, out.String(), "unpublished 0")
}

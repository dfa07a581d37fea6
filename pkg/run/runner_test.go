package run

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestCommandCmdline(t *testing.T) {
	skipWindows(t)
	cmd := NewCommand("blockMesh", "", nil)
	assert.Equal(t, []string{"blockMesh"}, cmd.Cmdline())

	cmd.Args = []string{"-help"}
	assert.Equal(t, []string{"blockMesh", "-help"}, cmd.Cmdline())

	cmd = NewCommand("pisoSolver", "", nil)
	cmd.SetRanks(4)
	assert.True(t, cmd.Parallel)
	assert.Equal(t,
		[]string{"mpiexec", "-np", "4", "pisoSolver", "-parallel"},
		cmd.Cmdline())

	cmd.MPIExtraArgs = []string{"--bind-to", "core"}
	assert.Equal(t,
		[]string{"mpiexec", "-np", "4", "--bind-to", "core", "pisoSolver", "-parallel"},
		cmd.Cmdline())
}

func TestCommandOutputFile(t *testing.T) {
	cmd := NewCommand("blockMesh", "", nil)
	assert.Equal(t, "blockMesh.log", cmd.outputFile())

	cmd = NewCommand("decomposePar.exe", "", nil)
	assert.Equal(t, "decomposePar.log", cmd.outputFile())

	cmd.OutputFile = "mesh.log"
	assert.Equal(t, "mesh.log", cmd.outputFile())
	assert.Equal(t, "mesh.log", cmd.LogName())
}

func TestCommandStopTerm(t *testing.T) {
	skipWindows(t)
	cmd := NewCommand("/bin/sh", t.TempDir(), nil)
	cmd.Args = []string{"-c", "exec sleep 30"}
	require.NoError(t, cmd.Start(context.Background()))

	require.NoError(t, cmd.Stop(5*time.Second))
	status, err := cmd.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, 0, status)
}

func TestCommandStopKill(t *testing.T) {
	skipWindows(t)
	cmd := NewCommand("/bin/sh", t.TempDir(), nil)
	// The child ignores SIGTERM so Stop must escalate to SIGKILL.
	cmd.Args = []string{"-c", "trap '' TERM; sleep 5 & wait $!"}
	require.NoError(t, cmd.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, cmd.Stop(300*time.Millisecond))
	status, err := cmd.Wait()
	require.NoError(t, err)
	assert.NotEqual(t, 0, status)
}

func TestCommandRun(t *testing.T) {
	skipWindows(t)
	casedir := t.TempDir()
	cmd := NewCommand("/bin/sh", casedir, nil)
	cmd.Args = []string{"-c", "echo run-output"}
	cmd.OutputFile = "sh.log"

	status, err := cmd.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	body, err := os.ReadFile(filepath.Join(casedir, "sh.log"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "run-output")
}

func TestCommandRunFailure(t *testing.T) {
	skipWindows(t)
	cmd := NewCommand("/bin/sh", t.TempDir(), nil)
	cmd.Args = []string{"-c", "exit 3"}

	status, err := cmd.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status)
}

func TestCommandEnvOverrides(t *testing.T) {
	skipWindows(t)
	casedir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(casedir, envFileName),
		[]byte("CASE_SETTING=from-env-file\n"), 0o644))

	cmd := NewCommand("/bin/sh", casedir, nil)
	cmd.Args = []string{"-c", "echo $CASE_SETTING"}
	status, err := cmd.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, status)

	body, err := os.ReadFile(filepath.Join(casedir, "sh.log"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "from-env-file")
}

func TestExecute(t *testing.T) {
	skipWindows(t)
	status, err := Execute(context.Background(), []string{"/bin/sh", "-c", "true"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	status, err = Execute(context.Background(), []string{"/bin/sh", "-c", "exit 7"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 7, status)
}

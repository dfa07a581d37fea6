package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTaskFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "caelus_tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadTasks(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), `
tasks:
  - run_command:
      cmd_name: blockMesh
  - run_command:
      cmd_name: pisoSolver
      parallel: true
      num_ranks: 4
  - process_logs:
      log_file: pisoSolver.log
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks.Steps, 3)
	assert.Equal(t, "run_command", tasks.Steps[0].Name)
	assert.Equal(t, "blockMesh", tasks.Steps[0].Options["cmd_name"])
	assert.Equal(t, true, tasks.Steps[1].Options["parallel"])
	assert.Equal(t, 4, tasks.Steps[1].Options["num_ranks"])
	require.NoError(t, tasks.Validate())
}

func TestLoadTasksLegacyRoot(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), `
actions:
  - clean_case:
      remove_zero: true
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	require.Len(t, tasks.Steps, 1)
	assert.Equal(t, "clean_case", tasks.Steps[0].Name)
}

func TestLoadTasksMissingRoot(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), "settings: {}\n")
	_, err := LoadTasks(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot find tasks list")
}

func TestLoadTasksNullOptions(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), `
tasks:
  - clean_case:
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	assert.Empty(t, tasks.Steps[0].Options)
}

func TestValidateRejectsUnknownTasks(t *testing.T) {
	path := writeTaskFile(t, t.TempDir(), `
tasks:
  - run_command:
      cmd_name: blockMesh
  - launch_rockets:
      target: moon
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	err = tasks.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch_rockets")
	assert.Contains(t, err.Error(), "run_command")
}

func TestTasksRun(t *testing.T) {
	skipWindows(t)
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	require.NoError(t, os.MkdirAll(filepath.Join(casedir, "templates", "sub"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(casedir, "templates", "sub", "seed"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(casedir, "0.5"), 0o755))

	path := writeTaskFile(t, casedir, `
tasks:
  - run_command:
      cmd_name: /bin/sh
      cmd_args: "-c true"
      log_file: step.log
  - copy_tree:
      src: templates/sub
      dest: staged
  - clean_case:
      preserve:
        - staged
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	require.NoError(t, tasks.Run(context.Background(), casedir, nil))

	assert.FileExists(t, filepath.Join(casedir, "staged", "seed"))
	assert.NoDirExists(t, filepath.Join(casedir, "0.5"))
	assert.DirExists(t, filepath.Join(casedir, "0"))
}

func TestTasksRunStopsOnFailure(t *testing.T) {
	skipWindows(t)
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	path := writeTaskFile(t, casedir, `
tasks:
  - run_command:
      cmd_name: /bin/sh
      cmd_args: "-c false"
  - copy_tree:
      src: never
      dest: created
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	err = tasks.Run(context.Background(), casedir, nil)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(casedir, "created"))
}

func TestTasksProcessLogs(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	log := `Time = 1
smoothSolver:  Solving for Ux, Initial residual = 0.1, Final residual = 0.001, No Iterations 3
End
`
	require.NoError(t, os.WriteFile(filepath.Join(casedir, "solver.log"), []byte(log), 0o644))
	path := writeTaskFile(t, casedir, `
tasks:
  - process_logs:
      log_file: solver.log
`)
	tasks, err := LoadTasks(path)
	require.NoError(t, err)
	require.NoError(t, tasks.Run(context.Background(), casedir, nil))
	assert.FileExists(t, filepath.Join(casedir, "logs", "Ux.dat"))
}

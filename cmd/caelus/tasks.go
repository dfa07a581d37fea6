package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/internal/osutils"
	"github.com/caelus-cml/caelus/pkg/run"
)

func newTasksCmd(app *appContext) *cobra.Command {
	var (
		taskFile string
		caseDir  string
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "run tasks from a file",
		Long: "Run pre-defined tasks within a case directory read from a " +
			"YAML-formatted file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.cmlEnv()
			if err != nil {
				return err
			}
			app.logger.Info("Caelus CML version", "version", env.Version())
			absfile, err := osutils.Abspath(taskFile)
			if err != nil {
				return err
			}
			tasks, err := run.LoadTasks(absfile)
			if err != nil {
				return err
			}
			casedir := caseDir
			if casedir == "" {
				casedir = filepath.Dir(absfile)
			}
			return tasks.Run(cmd.Context(), casedir, env)
		},
	}
	cmd.Flags().StringVarP(&taskFile, "file", "f", "caelus_tasks.yaml",
		"file containing tasks to execute")
	cmd.Flags().StringVarP(&caseDir, "case-dir", "d", "",
		"case directory the tasks run in (default: task file location)")
	return cmd
}

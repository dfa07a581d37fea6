package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/pkg/run"
)

// runStatusErr converts a non-zero child exit status into an error that
// main propagates as the process exit code.
func runStatusErr(exe string, status int, logName string) error {
	if status == 0 {
		return nil
	}
	return &exitStatusError{
		status: status,
		msg: fmt.Sprintf("%s exited with status %d; see %s for details",
			exe, status, logName),
	}
}

func newRunCmd(app *appContext) *cobra.Command {
	var (
		parallel bool
		logFile  string
		caseDir  string
	)
	cmd := &cobra.Command{
		Use:   "run cmd_name [cmd_args...]",
		Short: "run a Caelus executable in the correct environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.cmlEnv()
			if err != nil {
				return err
			}
			c := run.NewCommand(args[0], caseDir, env)
			c.Args = args[1:]
			c.OutputFile = logFile
			if parallel {
				ranks, err := run.MPISize(caseDir)
				if err != nil {
					return err
				}
				c.SetRanks(ranks)
				app.logger.Info("Executing in parallel", "exe", args[0], "ranks", ranks)
			} else {
				app.logger.Info("Executing in serial mode", "exe", args[0])
			}
			status, err := c.Run(cmd.Context())
			if err != nil {
				return err
			}
			return runStatusErr(args[0], status, c.LogName())
		},
	}
	flags := cmd.Flags()
	flags.BoolVarP(&parallel, "parallel", "p", false, "run in parallel")
	flags.StringVarP(&logFile, "log-file", "l", "", "filename to redirect command output")
	flags.StringVarP(&caseDir, "case-dir", "d", ".", "path to the case directory")
	return cmd
}

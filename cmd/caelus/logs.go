package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/internal/osutils"
	"github.com/caelus-cml/caelus/pkg/post"
)

func newLogsCmd(app *appContext) *cobra.Command {
	var (
		logsDir string
		caseDir string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "logs log_file",
		Short: "process the solver logs for a Caelus run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			casedir, err := osutils.Abspath(caseDir)
			if err != nil {
				return err
			}
			if info, err := os.Stat(casedir); err != nil || !info.IsDir() {
				return fmt.Errorf("case directory does not exist: %s", caseDir)
			}
			proc, err := post.NewLogProcessor(args[0], casedir, logsDir)
			if err != nil {
				return err
			}
			if watch {
				return proc.Watch(cmd.Context())
			}
			if err := proc.Process(); err != nil {
				return err
			}
			app.logger.Info("Logs processed", "log", args[0], "dir", logsDir)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&logsDir, "logs-dir", "l", "logs",
		"directory where extracted logs are output")
	flags.StringVarP(&caseDir, "case-dir", "d", ".",
		"path to the case directory")
	flags.BoolVarP(&watch, "watch", "w", false,
		"process the log file as the solver writes it")
	return cmd
}

// Command caelus is the command-line interface to the Caelus case
// management toolkit: cloning cases, running CML executables, executing
// task workflows, and processing solver output.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/pkg/config"
	"github.com/caelus-cml/caelus/pkg/logging"
)

// appContext carries state shared by all subcommands.
type appContext struct {
	cfg    *config.Config
	logger *slog.Logger

	cfgFile    string
	logLevel   string
	logFile    string
	cmlVersion string
}

// cmlEnv resolves the CML environment selected on the command line, or the
// configured default.
func (app *appContext) cmlEnv() (*config.CMLEnv, error) {
	mgr := config.NewEnvManager(app.cfg, app.logger)
	return mgr.Version(app.cmlVersion)
}

func (app *appContext) setup(cmd *cobra.Command, args []string) error {
	cfg, files, err := config.Load()
	if err != nil {
		return err
	}
	if app.cfgFile != "" {
		if err := config.LoadFile(cfg, app.cfgFile); err != nil {
			return err
		}
		files = append(files, app.cfgFile)
	}
	app.cfg = cfg

	logCfg := logging.Config{
		Level:     cfg.Caelus.Logging.Level,
		LogFile:   cfg.Caelus.Logging.LogFile,
		LogToFile: cfg.Caelus.Logging.LogToFile,
	}
	if app.logLevel != "" {
		logCfg.Level = app.logLevel
	}
	if app.logFile != "" {
		logCfg.LogFile = app.logFile
		logCfg.LogToFile = true
	}
	logger, _, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	app.logger = logger
	if len(files) > 0 {
		logger.Debug("Loaded configuration", "files", files)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	app := &appContext{}
	root := &cobra.Command{
		Use:   "caelus",
		Short: "Caelus case management utility",
		Long: `Command-line access to the Caelus case management toolkit.

Common tasks such as cloning a case directory, executing mesh and solver
executables, automating workflows via task files, processing solver logs,
and cleaning run directories are available as subcommands.`,
		SilenceUsage:      true,
		PersistentPreRunE: app.setup,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "additional configuration file")
	flags.StringVar(&app.logLevel, "log-level", "", "logging verbosity (debug, info, warn, error)")
	flags.StringVar(&app.logFile, "log-file", "", "file to capture log messages")
	flags.StringVar(&app.cmlVersion, "cml-version", "", "CML version used for execution")

	root.AddCommand(
		newEnvCmd(app),
		newCloneCmd(app),
		newTasksCmd(app),
		newRunCmd(app),
		newLogsCmd(app),
		newCleanCmd(app),
		newPlotCmd(app),
	)
	return root
}

// exitStatusError carries a child process exit status so the caelus
// process terminates with the same code.
type exitStatusError struct {
	status int
	msg    string
}

func (e *exitStatusError) Error() string { return e.msg }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "caelus:", err)
		var exitErr *exitStatusError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.status)
		}
		os.Exit(1)
	}
}

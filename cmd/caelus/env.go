package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/pkg/config"
)

// envEntry is one shell variable written to the environment files. Order
// matters: later entries may reference earlier ones.
type envEntry struct {
	Key   string
	Value string
}

// shellEnvironment builds the variables sourced into a user shell to make
// a CML installation usable.
func shellEnvironment(env *config.CMLEnv) []envEntry {
	sep := string(os.PathListSeparator)
	libVar := "LD_LIBRARY_PATH"
	if runtime.GOOS == "darwin" {
		libVar = "DYLD_FALLBACK_LIBRARY_PATH"
	}
	project := env.ProjectDir()
	mpiRoot := ""
	if env.MPIBinDir() != "" {
		mpiRoot = filepath.Dir(env.MPIBinDir())
	}
	return []envEntry{
		{"PROJECT_NAME", "Caelus"},
		{"PROJECT_VERSION", env.Version()},
		{"PROJECT_VER", env.Version()},
		{"PROJECT", "caelus-" + env.Version()},
		{"PROJECT_DIR", env.Root()},
		{"CAELUS_PROJECT_DIR", project},
		{"BUILD_OPTION", env.BuildOption()},
		{"EXTERNAL_DIR", filepath.Join(project, "external")},
		{"MPI_BUFFER_SIZE", "20000000"},
		{"OPAL_PREFIX", mpiRoot},
		{"PATH", env.BinDir() + sep + env.MPIBinDir() + sep + "$PATH"},
		{libVar, env.LibDir() + sep + env.MPILibDir() + sep + "$" + libVar},
		{"MPI_LIB_PATH", env.MPILibDir()},
		{"BIN_PLATFORM_INSTALL", env.BinDir()},
		{"LIB_PLATFORM_INSTALL", env.LibDir()},
		{"LIB_SRC", filepath.Join(project, "src", "libraries")},
		{"CAELUS_APP", filepath.Join(project, "src", "applications")},
		{"CAELUS_SOLVERS", filepath.Join(project, "src", "applications", "solvers")},
		{"CAELUS_UTILITIES", filepath.Join(project, "src", "applications", "utilities")},
		{"CAELUS_TUTORIALS", env.TutorialsDir()},
	}
}

func writeEnvFile(path, header, lineFmt string, entries []envEntry) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing environment file: %w", err)
	}
	defer fh.Close()
	if _, err := fh.WriteString(header); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(fh, lineFmt, e.Key, e.Value); err != nil {
			return err
		}
	}
	return fh.Close()
}

func envValue(entries []envEntry, key string) string {
	for _, e := range entries {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}

// writeUnixEnv writes bash and csh environment files into dir.
func writeUnixEnv(app *appContext, dir string, entries []envEntry) error {
	project := envValue(entries, "PROJECT")
	bashrc := filepath.Join(dir, "caelus-bashrc")
	header := fmt.Sprintf("#!/bin/bash\n#\n# Bash configuration file for %s\n\n", project)
	if err := writeEnvFile(bashrc, header, "export %s=\"%s\"\n", entries); err != nil {
		return err
	}
	app.logger.Info("Bash environment file written", "file", bashrc)

	cshrc := filepath.Join(dir, "caelus-cshrc")
	header = fmt.Sprintf("#!/bin/csh\n#\n# csh configuration file for %s\n\n", project)
	if err := writeEnvFile(cshrc, header, "setenv %s \"%s\"\n", entries); err != nil {
		return err
	}
	app.logger.Info("Csh environment file written", "file", cshrc)
	return nil
}

// writeWindowsEnv writes a cmd.exe environment file into dir.
func writeWindowsEnv(app *appContext, dir string, entries []envEntry) error {
	path := filepath.Join(dir, "caelus-environment.cmd")
	header := "\nREM Caelus run environment\n@echo off\n\n"
	if err := writeEnvFile(path, header, "@set %s=%s\n", entries); err != nil {
		return err
	}
	app.logger.Info("Environment file written", "file", path)
	return nil
}

func newEnvCmd(app *appContext) *cobra.Command {
	var writeDir string
	cmd := &cobra.Command{
		Use:   "env",
		Short: "write shell environment files",
		Long: "Write environment variable files that can be sourced into " +
			"the shell to use a CML installation directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.cmlEnv()
			if err != nil {
				return err
			}
			dir := writeDir
			if dir == "" {
				dir = filepath.Join(env.ProjectDir(), "etc")
			}
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("directory does not exist: %s", dir)
			}
			entries := shellEnvironment(env)
			if runtime.GOOS == "windows" {
				return writeWindowsEnv(app, dir, entries)
			}
			return writeUnixEnv(app, dir, entries)
		},
	}
	cmd.Flags().StringVarP(&writeDir, "write-dir", "d", "",
		"path where the environment files are written")
	return cmd
}

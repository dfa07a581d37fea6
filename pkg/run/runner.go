package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caelus-cml/caelus/pkg/config"
)

// envFileName is an optional per-case file with environment overrides
// applied on top of the CML environment.
const envFileName = ".env"

// Command executes a CML program inside a case directory with the proper
// environment, capturing all output to a log file.
type Command struct {
	// Exe is the CML program to run, e.g. blockMesh or pisoSolver.
	Exe string
	// Args are the arguments passed to the program.
	Args []string
	// CaseDir is the working directory for the run; defaults to the
	// current directory.
	CaseDir string
	// Env selects the CML installation used for the run.
	Env *config.CMLEnv
	// OutputFile receives stdout and stderr; defaults to <Exe>.log
	// inside the case directory.
	OutputFile string
	// Parallel runs the program under mpiexec with NumRanks ranks and
	// appends -parallel to the program arguments.
	Parallel bool
	// NumRanks is the MPI rank count for parallel runs.
	NumRanks int
	// MPIExtraArgs are additional arguments passed to mpiexec.
	MPIExtraArgs []string

	logger  *slog.Logger
	cmd     *exec.Cmd
	logFh   *os.File
	waitErr error
	done    chan struct{}
}

// NewCommand creates a runner for the given CML program in casedir.
func NewCommand(exe, casedir string, env *config.CMLEnv) *Command {
	return &Command{
		Exe:      exe,
		CaseDir:  casedir,
		Env:      env,
		NumRanks: 1,
		logger:   slog.Default(),
	}
}

// SetRanks sets the MPI rank count, enabling parallel execution when more
// than one rank is requested.
func (c *Command) SetRanks(n int) {
	c.NumRanks = n
	if n > 1 {
		c.Parallel = true
	}
}

// MPICommand returns the mpiexec invocation for a parallel run.
func (c *Command) MPICommand() []string {
	rankFlag := "-np"
	if runtime.GOOS == "windows" {
		rankFlag = "-localonly"
	}
	args := []string{"mpiexec", rankFlag, strconv.Itoa(c.NumRanks)}
	return append(args, c.MPIExtraArgs...)
}

// ExeCommand returns the program invocation including the -parallel flag
// for parallel runs.
func (c *Command) ExeCommand() []string {
	args := []string{c.Exe}
	if c.Parallel {
		args = append(args, "-parallel")
	}
	return append(args, c.Args...)
}

// Cmdline returns the full command as executed.
func (c *Command) Cmdline() []string {
	if c.Parallel {
		return append(c.MPICommand(), c.ExeCommand()...)
	}
	return c.ExeCommand()
}

// environ assembles the process environment: the CML installation
// environment with any case-local .env overrides applied on top.
func (c *Command) environ() ([]string, error) {
	env := os.Environ()
	if c.Env != nil {
		env = c.Env.Environ()
	}
	envFile := filepath.Join(c.caseDir(), envFileName)
	if _, err := os.Stat(envFile); err != nil {
		return env, nil
	}
	overrides, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}
	c.logger.Debug("Applying case environment overrides", "file", envFile, "count", len(overrides))
	for key, val := range overrides {
		env = append(env, key+"="+val)
	}
	return env, nil
}

func (c *Command) caseDir() string {
	if c.CaseDir == "" {
		return "."
	}
	return c.CaseDir
}

func (c *Command) outputFile() string {
	if c.OutputFile != "" {
		return c.OutputFile
	}
	base := filepath.Base(c.Exe)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".log"
}

// LogName returns the effective output file name for the run, applying the
// <Exe>.log default when none was set.
func (c *Command) LogName() string { return c.outputFile() }

// Start launches the program without waiting for completion.
func (c *Command) Start(ctx context.Context) error {
	if c.cmd != nil {
		return errors.New("command already started")
	}
	environ, err := c.environ()
	if err != nil {
		return err
	}
	logPath := c.outputFile()
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(c.caseDir(), logPath)
	}
	fh, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}

	argv := c.Cmdline()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.caseDir()
	cmd.Env = environ
	cmd.Stdout = fh
	cmd.Stderr = fh

	c.logger.Info("Executing command",
		"cmd", strings.Join(argv, " "),
		"case", c.caseDir(),
		"log", logPath)
	if err := cmd.Start(); err != nil {
		fh.Close()
		return fmt.Errorf("starting %s: %w", c.Exe, err)
	}
	c.cmd = cmd
	c.logFh = fh
	// A single goroutine reaps the child so that Stop and Wait never race
	// over the same process.
	c.done = make(chan struct{})
	go func() {
		c.waitErr = cmd.Wait()
		c.logFh.Close()
		close(c.done)
	}()
	return nil
}

// Wait blocks until the program exits and returns its exit status.
func (c *Command) Wait() (int, error) {
	if c.cmd == nil {
		return -1, errors.New("command not started")
	}
	<-c.done
	err := c.waitErr
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := exitErr.ExitCode()
		c.logger.Error("Command exited with errors",
			"exe", c.Exe, "case", c.caseDir(), "status", status)
		return status, nil
	}
	return -1, fmt.Errorf("waiting for %s: %w", c.Exe, err)
}

// Run executes the program and waits for completion, returning the exit
// status.
func (c *Command) Run(ctx context.Context) (int, error) {
	if err := c.Start(ctx); err != nil {
		return -1, err
	}
	return c.Wait()
}

// Stop terminates a running program, escalating from SIGTERM to SIGKILL
// after the grace period.
func (c *Command) Stop(grace time.Duration) error {
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	proc := c.cmd.Process
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return proc.Kill()
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(grace):
		c.logger.Warn("Process did not exit after SIGTERM; killing", "exe", c.Exe)
		return proc.Kill()
	}
}

// Execute runs an arbitrary command line under the CML environment. It is
// a convenience wrapper for one-off invocations such as "blockMesh -help".
func Execute(ctx context.Context, cmdline []string, env *config.CMLEnv, workdir string) (int, error) {
	if len(cmdline) == 0 {
		return -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	if workdir != "" {
		cmd.Dir = workdir
	}
	if env != nil {
		cmd.Env = env.Environ()
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	slog.Debug("Executing shell command", "cmd", strings.Join(cmdline, " "))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing %s: %w", cmdline[0], err)
	}
	return 0, nil
}

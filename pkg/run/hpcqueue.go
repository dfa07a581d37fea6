package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/google/uuid"

	"github.com/caelus-cml/caelus/pkg/config"
)

// JobSettings holds scheduler options for a submitted job. Zero values are
// omitted from generated submission scripts.
type JobSettings struct {
	Name         string
	Queue        string
	Account      string
	NumNodes     int
	NumRanks     int
	Stdout       string
	Stderr       string
	JoinOutputs  bool
	MailOpts     string
	EmailAddress string
	QOS          string
	TimeLimit    string
	Shell        string
	MPIExtraArgs string
}

// SettingsFromConfig seeds job settings from the configured scheduler
// defaults.
func SettingsFromConfig(cfg *config.Config) JobSettings {
	d := cfg.Caelus.System.SchedulerDefaults
	return JobSettings{
		Queue:        d.Queue,
		Account:      d.Account,
		NumNodes:     d.NumNodes,
		NumRanks:     d.NumRanks,
		Stdout:       d.Stdout,
		Stderr:       d.Stderr,
		JoinOutputs:  d.JoinOutputs,
		MailOpts:     d.MailOpts,
		EmailAddress: d.EmailAddress,
		QOS:          d.QOS,
		TimeLimit:    d.TimeLimit,
		Shell:        d.Shell,
		MPIExtraArgs: d.MPIExtraArgs,
	}
}

// Job is a unit of work submitted to a queue: a script body executed in a
// case directory under a CML environment.
type Job struct {
	JobSettings
	// CaseDir is the directory the job runs in.
	CaseDir string
	// Env is the CML installation used by the job.
	Env *config.CMLEnv
	// ScriptBody holds the shell commands executed by the job.
	ScriptBody string
}

// Queue submits jobs for execution, either directly or through a job
// scheduler.
type Queue interface {
	// Name identifies the queue type, e.g. "slurm".
	Name() string
	// IsScheduler reports whether submission goes through a batch
	// scheduler.
	IsScheduler() bool
	// IsParallel reports whether the queue supports MPI runs.
	IsParallel() bool
	// MPICommand returns the MPI launcher prefix for the job.
	MPICommand(job *Job) string
	// QueueSettings returns the scheduler option block embedded in the
	// submission script; empty for direct execution queues.
	QueueSettings(s JobSettings) string
	// Submit runs or enqueues the job, returning its job ID. For
	// schedulers, deps lists job IDs that must complete successfully
	// first.
	Submit(ctx context.Context, job *Job, deps []string) (string, error)
	// Delete removes a job from the queue.
	Delete(ctx context.Context, jobID string) error
}

// jobScriptTemplate renders a scheduler submission script.
var jobScriptTemplate = pongo2.Must(pongo2.FromString(
	`#!{{ shell|safe }}
{{ queue_config|safe }}
# Environment
{{ env_config|safe }}
{{ script_body|safe }}
`))

// writeScript renders the submission script for a job and returns its path.
func writeScript(job *Job, queueConfig, envConfig, fname string) (string, error) {
	if job.ScriptBody == "" {
		return "", fmt.Errorf("job %s: script body has not been set", job.JobSettings.Name)
	}
	shell := job.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	out, err := jobScriptTemplate.Execute(pongo2.Context{
		"shell":        shell,
		"queue_config": queueConfig,
		"env_config":   envConfig,
		"script_body":  job.ScriptBody,
	})
	if err != nil {
		return "", fmt.Errorf("rendering job script: %w", err)
	}
	path := fname
	if !filepath.IsAbs(path) {
		path = filepath.Join(job.CaseDir, fname)
	}
	if err := os.WriteFile(path, []byte(out), 0o755); err != nil {
		return "", fmt.Errorf("writing job script: %w", err)
	}
	return path, nil
}

// envPreamble generates the shell exports making the CML installation
// available inside a scheduler job.
func envPreamble(env *config.CMLEnv) string {
	if env == nil {
		return ""
	}
	var buf bytes.Buffer
	pathVar := env.BinDir() + string(os.PathListSeparator) + env.MPIBinDir()
	libVar := env.LibDir() + string(os.PathListSeparator) + env.MPILibDir()
	fmt.Fprintf(&buf, "export PROJECT_DIR=%s\n", env.ProjectDir())
	fmt.Fprintf(&buf, "export CAELUS_PROJECT_DIR=${PROJECT_DIR}\n")
	fmt.Fprintf(&buf, "export PATH=%s:${PATH}\n", pathVar)
	fmt.Fprintf(&buf, "export LD_LIBRARY_PATH=%s:${LD_LIBRARY_PATH}\n", libVar)
	return buf.String()
}

// SerialJob executes the job script directly without MPI.
type SerialJob struct{}

func (SerialJob) Name() string                       { return "serial_job" }
func (SerialJob) IsScheduler() bool                  { return false }
func (SerialJob) IsParallel() bool                   { return false }
func (SerialJob) MPICommand(job *Job) string         { return "" }
func (SerialJob) QueueSettings(s JobSettings) string { return "" }

// submitLocal runs the job script directly through a shell, with the given
// launcher prefix applied.
func submitLocal(ctx context.Context, job *Job, mpiCmd string) (string, error) {
	if job.JobSettings.Name == "" {
		return "", errors.New("local job submission requires a job name")
	}
	if job.ScriptBody == "" {
		return "", fmt.Errorf("job %s: script body has not been set", job.JobSettings.Name)
	}
	jobID := uuid.NewString()
	outfile := job.Stdout
	if outfile == "" {
		outfile = job.JobSettings.Name + ".log"
	}
	cmd := Command{
		Exe:        "/bin/sh",
		Args:       []string{"-c", mpiCmd + job.ScriptBody},
		CaseDir:    job.CaseDir,
		Env:        job.Env,
		OutputFile: outfile,
		logger:     slog.Default(),
	}
	status, err := cmd.Run(ctx)
	if err != nil {
		return "", err
	}
	if status != 0 {
		return jobID, fmt.Errorf("job %s exited with status %d", job.JobSettings.Name, status)
	}
	return jobID, nil
}

func (q SerialJob) Submit(ctx context.Context, job *Job, deps []string) (string, error) {
	return submitLocal(ctx, job, q.MPICommand(job))
}

func (SerialJob) Delete(ctx context.Context, jobID string) error { return nil }

// ParallelJob executes the job script directly under a local MPI launcher.
type ParallelJob struct {
	SerialJob
}

func (ParallelJob) Name() string     { return "parallel_job" }
func (ParallelJob) IsParallel() bool { return true }

func (ParallelJob) MPICommand(job *Job) string {
	c := Command{NumRanks: job.NumRanks}
	if c.NumRanks < 1 {
		// Unset rank counts come from the case decomposition.
		if n, err := MPISize(job.CaseDir); err == nil {
			c.NumRanks = n
		} else {
			c.NumRanks = 1
		}
	}
	if job.MPIExtraArgs != "" {
		c.MPIExtraArgs = strings.Fields(job.MPIExtraArgs)
	}
	return strings.Join(c.MPICommand(), " ") + " "
}

func (q ParallelJob) Submit(ctx context.Context, job *Job, deps []string) (string, error) {
	return submitLocal(ctx, job, q.MPICommand(job))
}

// SlurmQueue submits jobs to the SLURM workload manager.
type SlurmQueue struct{}

func (SlurmQueue) Name() string      { return "slurm" }
func (SlurmQueue) IsScheduler() bool { return true }
func (SlurmQueue) IsParallel() bool  { return true }

func (SlurmQueue) MPICommand(job *Job) string {
	cmd := "srun --ntasks ${SLURM_NTASKS} "
	if job.MPIExtraArgs != "" {
		cmd += job.MPIExtraArgs + " "
	}
	return cmd
}

var batchJobRegex = regexp.MustCompile(`Submitted batch job (\d+)`)

// slurmOptions maps settings onto sbatch option names, in output order.
func slurmOptions(s JobSettings) []string {
	type opt struct{ flag, value string }
	opts := []opt{
		{"job-name", s.Name},
		{"partition", s.Queue},
		{"account", s.Account},
		{"nodes", intOpt(s.NumNodes)},
		{"ntasks", intOpt(s.NumRanks)},
		{"output", s.Stdout},
		{"error", s.Stderr},
		{"mail-type", s.MailOpts},
		{"mail-user", s.EmailAddress},
		{"qos", s.QOS},
		{"time", s.TimeLimit},
	}
	var lines []string
	for _, o := range opts {
		if o.value == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("#SBATCH --%s %s", o.flag, o.value))
	}
	return lines
}

func intOpt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// QueueSettings returns the SBATCH option block embedded in the submission
// script.
func (SlurmQueue) QueueSettings(s JobSettings) string {
	if s.Stdout == "" {
		s.Stdout = "job-%x-%J.out"
	}
	if s.MailOpts == "" {
		s.MailOpts = "NONE"
	}
	return "\n# SLURM options\n" + strings.Join(slurmOptions(s), "\n") + "\n"
}

func (q SlurmQueue) Submit(ctx context.Context, job *Job, deps []string) (string, error) {
	fname := fmt.Sprintf("%s_%s.job", job.JobSettings.Name, q.Name())
	script, err := writeScript(job, q.QueueSettings(job.JobSettings), envPreamble(job.Env), fname)
	if err != nil {
		return "", err
	}

	args := []string{}
	if len(deps) > 0 {
		args = append(args, "--depend", "afterok:"+strings.Join(deps, ":"))
	}
	args = append(args, script)

	slog.Debug("Submitting SLURM job", "script", script, "deps", deps)
	cmd := exec.CommandContext(ctx, "sbatch", args...)
	cmd.Dir = job.CaseDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("submitting job %s: %w: %s", job.JobSettings.Name, err, out)
	}
	m := batchJobRegex.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("submitting job %s: cannot determine job ID from: %s",
			job.JobSettings.Name, out)
	}
	return string(m[1]), nil
}

func (SlurmQueue) Delete(ctx context.Context, jobID string) error {
	slog.Debug("Cancelling SLURM job", "id", jobID)
	out, err := exec.CommandContext(ctx, "scancel", jobID).CombinedOutput()
	if err != nil {
		return fmt.Errorf("cancelling job %s: %w: %s", jobID, err, out)
	}
	return nil
}

// queueTypes maps job_scheduler configuration values to queue
// implementations.
var queueTypes = map[string]Queue{
	"no_mpi":    SerialJob{},
	"local_mpi": ParallelJob{},
	"slurm":     SlurmQueue{},
}

// GetScheduler returns the queue named by queueType, or the configured
// job_scheduler when queueType is empty. Unknown names fall back to local
// MPI execution.
func GetScheduler(cfg *config.Config, queueType string) Queue {
	qtype := queueType
	if qtype == "" {
		qtype = cfg.Caelus.System.JobScheduler
	}
	if q, ok := queueTypes[strings.ToLower(qtype)]; ok {
		return q
	}
	return ParallelJob{}
}

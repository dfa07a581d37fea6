// Command caelus-tutorials runs or cleans tutorial cases in bulk: every
// case directory under the base directory carrying a task file is executed
// as a recipe.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/internal/osutils"
	"github.com/caelus-cml/caelus/pkg/config"
	"github.com/caelus-cml/caelus/pkg/logging"
	"github.com/caelus-cml/caelus/pkg/run"
)

type tutorialRunner struct {
	cfg    *config.Config
	logger *slog.Logger

	baseDir  string
	cloneDir string
	taskFile string
	clean    bool
	include  []string
	exclude  []string

	logLevel   string
	cmlVersion string
}

// matchTutorials filters recipe directories against the include and
// exclude shell wildcard patterns. Include patterns win when both are
// given.
func matchTutorials(recipes, include, exclude []string) []string {
	if len(include) > 0 {
		var out []string
		for _, dir := range recipes {
			for _, pat := range include {
				if ok, _ := filepath.Match(pat, dir); ok {
					out = append(out, dir)
					break
				}
			}
		}
		return out
	}
	if len(exclude) > 0 {
		var out []string
	next:
		for _, dir := range recipes {
			for _, pat := range exclude {
				if ok, _ := filepath.Match(pat, dir); ok {
					continue next
				}
			}
			out = append(out, dir)
		}
		return out
	}
	return recipes
}

// cleanSteps reduces a workflow to its clean_case steps.
func cleanSteps(tasks *run.Tasks) *run.Tasks {
	var steps []run.Task
	for _, step := range tasks.Steps {
		if step.Name == "clean_case" {
			steps = append(steps, step)
		}
	}
	tasks.Steps = steps
	return tasks
}

func (r *tutorialRunner) runOne(ctx context.Context, casedir string, env *config.CMLEnv) error {
	tasks, err := run.LoadTasks(filepath.Join(casedir, r.taskFile))
	if err != nil {
		return err
	}
	if r.clean {
		tasks = cleanSteps(tasks)
	}
	return tasks.Run(ctx, casedir, env)
}

func (r *tutorialRunner) execute(cmd *cobra.Command, args []string) error {
	logger, _, err := logging.Setup(logging.Config{Level: r.logLevel})
	if err != nil {
		return err
	}
	r.logger = logger

	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	r.cfg = cfg

	env, err := config.NewEnvManager(cfg, logger).Version(r.cmlVersion)
	if err != nil {
		return err
	}
	logger.Info("Caelus CML version", "version", env.Version())

	basedir, err := osutils.Abspath(r.baseDir)
	if err != nil {
		return err
	}
	if r.cloneDir != "" {
		srcdir, err := osutils.Abspath(r.cloneDir)
		if err != nil {
			return err
		}
		dest := filepath.Join(basedir, filepath.Base(srcdir))
		if err := osutils.CopyTree(srcdir, dest, osutils.CopyOpts{}); err != nil {
			return err
		}
		logger.Info("Copied tutorials", "from", srcdir, "to", dest)
	}

	recipes, err := run.FindRecipeDirs(basedir, r.taskFile)
	if err != nil {
		return err
	}
	recipes = matchTutorials(recipes, r.include, r.exclude)

	verb := "run"
	if r.clean {
		verb = "clean"
	}
	attempted, failed := 0, 0
	for _, rel := range recipes {
		casedir := filepath.Join(basedir, rel)
		logger.Info("Processing tutorial", "mode", verb, "case", rel)
		attempted++
		if err := r.runOne(cmd.Context(), casedir, env); err != nil {
			logger.Error("Tutorial failed", "case", rel, "error", err)
			failed++
		}
	}
	logger.Info("Tutorial sweep complete",
		"mode", verb, "attempted", attempted, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d tutorials failed", failed, attempted)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	r := &tutorialRunner{}
	cmd := &cobra.Command{
		Use:          "caelus-tutorials",
		Short:        "run Caelus tutorials",
		Long:         "Run or clean all tutorial cases found under a directory.",
		SilenceUsage: true,
		RunE:         r.execute,
	}
	flags := cmd.Flags()
	flags.StringVarP(&r.baseDir, "base-dir", "d", ".",
		"directory where tutorials are run")
	flags.StringVarP(&r.cloneDir, "clone-dir", "c", "",
		"copy tutorials from this directory before running")
	flags.BoolVar(&r.clean, "clean", false,
		"clean tutorials instead of running them")
	flags.StringVarP(&r.taskFile, "task-file", "f", "run_tutorial.yaml",
		"task file containing tutorial actions")
	flags.StringArrayVarP(&r.include, "include-patterns", "i", nil,
		"run tutorial case if it matches the shell wildcard pattern")
	flags.StringArrayVarP(&r.exclude, "exclude-patterns", "e", nil,
		"exclude tutorials that match the shell wildcard pattern")
	cmd.MarkFlagsMutuallyExclusive("include-patterns", "exclude-patterns")
	flags.StringVar(&r.logLevel, "log-level", "info",
		"logging verbosity (debug, info, warn, error)")
	flags.StringVar(&r.cmlVersion, "cml-version", "",
		"CML version used for execution")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "caelus-tutorials:", err)
		os.Exit(1)
	}
}

package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caelus-cml/caelus/internal/osutils"
	"github.com/caelus-cml/caelus/pkg/config"
	"github.com/caelus-cml/caelus/pkg/post"
)

// Task is one workflow step: a task name mapped to its options.
type Task struct {
	Name    string
	Options map[string]any
}

// UnmarshalYAML decodes the single-key mapping form used in task files,
// e.g. "- run_command: {cmd_name: blockMesh}".
func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: task entry must be a single-key mapping", value.Line)
	}
	if err := value.Content[0].Decode(&t.Name); err != nil {
		return fmt.Errorf("line %d: decoding task name: %w", value.Line, err)
	}
	opts := value.Content[1]
	t.Options = make(map[string]any)
	if opts.Tag == "!!null" {
		return nil
	}
	if err := opts.Decode(&t.Options); err != nil {
		return fmt.Errorf("task %s: decoding options: %w", t.Name, err)
	}
	return nil
}

// Tasks is an ordered workflow loaded from a YAML task file.
type Tasks struct {
	// Steps holds the tasks in execution order.
	Steps []Task
	// File is the task file the workflow was loaded from.
	File string

	caseDir string
	env     *config.CMLEnv
	logger  *slog.Logger
}

type taskHandler struct {
	run  func(ctx context.Context, t *Tasks, opts options) error
	help string
}

// taskHandlers maps task names to their implementations.
var taskHandlers = map[string]taskHandler{
	"run_command":  {runCommandTask, "Execute a Caelus CML program"},
	"copy_tree":    {copyTreeTask, "Recursively copy a given directory to the destination"},
	"clean_case":   {cleanCaseTask, "Clean a case directory"},
	"process_logs": {processLogsTask, "Process solver logs for a case"},
}

// LoadTasks reads a workflow from a YAML file. The steps live under the
// "tasks" key; the older "actions" key is still accepted.
func LoadTasks(taskFile string) (*Tasks, error) {
	absfile, err := osutils.Abspath(taskFile)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(absfile)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	var doc struct {
		Tasks   []Task `yaml:"tasks"`
		Actions []Task `yaml:"actions"`
	}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("loading tasks from %s: %w", taskFile, err)
	}
	steps := doc.Tasks
	if len(steps) == 0 {
		steps = doc.Actions
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("cannot find tasks list in file: %s", taskFile)
	}
	t := &Tasks{Steps: steps, File: absfile, logger: slog.Default()}
	t.logger.Info("Loaded tasks", "file", absfile, "count", len(steps))
	return t, nil
}

// Validate checks every step against the known task names before anything
// executes.
func (t *Tasks) Validate() error {
	var invalid []string
	for _, step := range t.Steps {
		if _, ok := taskHandlers[step.Name]; !ok {
			invalid = append(invalid, step.Name)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	valid := make([]string, 0, len(taskHandlers))
	for name, handler := range taskHandlers {
		valid = append(valid, fmt.Sprintf("%s - %s", name, handler.help))
	}
	sort.Strings(valid)
	return fmt.Errorf("invalid tasks: %s (valid tasks: %s)",
		strings.Join(invalid, ", "), strings.Join(valid, "; "))
}

// Run executes all steps in order inside casedir using the given CML
// environment. Execution stops at the first failing task.
func (t *Tasks) Run(ctx context.Context, casedir string, env *config.CMLEnv) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if casedir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		casedir = cwd
	}
	t.caseDir = casedir
	t.env = env

	t.logger.Info("Begin executing tasks", "case", casedir)
	for _, step := range t.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		handler := taskHandlers[step.Name]
		if err := handler.run(ctx, t, options(step.Options)); err != nil {
			return fmt.Errorf("task %s: %w", step.Name, err)
		}
	}
	t.logger.Info("Successfully executed tasks", "count", len(t.Steps), "case", casedir)
	return nil
}

// options provides typed access to loosely-typed task parameters.
type options map[string]any

func (o options) str(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

func (o options) boolean(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

func (o options) integer(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func (o options) strings(key string) []string {
	raw, ok := o[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func runCommandTask(ctx context.Context, t *Tasks, opts options) error {
	exe := opts.str("cmd_name", "")
	if exe == "" {
		return fmt.Errorf("cmd_name is required")
	}
	cmd := NewCommand(exe, t.caseDir, t.env)
	if args := opts.str("cmd_args", ""); args != "" {
		cmd.Args = strings.Fields(args)
	}
	cmd.OutputFile = opts.str("log_file", "")
	if opts.boolean("parallel", false) {
		ranks := opts.integer("num_ranks", 0)
		if ranks == 0 {
			var err error
			if ranks, err = MPISize(t.caseDir); err != nil {
				return err
			}
		}
		cmd.SetRanks(ranks)
		if extra := opts.str("mpi_extra_args", ""); extra != "" {
			cmd.MPIExtraArgs = strings.Fields(extra)
		}
	}
	t.logger.Info("Executing command", "cmd", exe)
	status, err := cmd.Run(ctx)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("%s exited with status %d", exe, status)
	}
	return nil
}

func copyTreeTask(ctx context.Context, t *Tasks, opts options) error {
	src := opts.str("src", "")
	dest := opts.str("dest", "")
	if src == "" || dest == "" {
		return fmt.Errorf("src and dest are required")
	}
	if !filepath.IsAbs(src) {
		src = filepath.Join(t.caseDir, src)
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(t.caseDir, dest)
	}
	return osutils.CopyTree(src, dest, osutils.CopyOpts{
		Ignore:           opts.strings("ignore_patterns"),
		PreserveSymlinks: opts.boolean("preserve_symlinks", false),
	})
}

func cleanCaseTask(ctx context.Context, t *Tasks, opts options) error {
	t.logger.Info("Cleaning case directory", "case", t.caseDir)
	return Clean(t.caseDir, CleanOpts{
		PreserveZero:  !opts.boolean("remove_zero", false),
		PurgeMesh:     opts.boolean("remove_mesh", false),
		PreserveExtra: opts.strings("preserve"),
	})
}

func processLogsTask(ctx context.Context, t *Tasks, opts options) error {
	logFile := opts.str("log_file", "")
	if logFile == "" {
		return fmt.Errorf("log_file is required")
	}
	t.logger.Info("Processing log file", "log", logFile)
	proc, err := post.NewLogProcessor(logFile, t.caseDir, opts.str("logs_directory", "logs"))
	if err != nil {
		return err
	}
	return proc.Process()
}

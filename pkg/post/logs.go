// Package post processes solver output: log file extraction and plotting.
package post

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/fsnotify/fsnotify"

	"github.com/caelus-cml/caelus/internal/osutils"
)

// Patterns matched against solver log lines.
var (
	timeRegex        = regexp.MustCompile(`^Time = (\S+)`)
	courantRegex     = regexp.MustCompile(`^Courant Number mean: (\S+) max: (\S+)`)
	residualRegex    = regexp.MustCompile(`(\S+): *Solving for (\S+), Initial residual = (\S+), Final residual = (\S+), No Iterations (\S+)`)
	boundingRegex    = regexp.MustCompile(`^\s+bounding (\S+), min:\s*(\S+)\s+max:\s*(\S+)\s+average:\s*(\S+)`)
	continuityRegex  = regexp.MustCompile(`time step continuity errors : sum local = (\S+), global = (\S+), cumulative = (\S+)`)
	execTimeRegex    = regexp.MustCompile(`ExecutionTime = (\S+) s  ClockTime = (\S+) s`)
	convergenceRegex = regexp.MustCompile(`(\S+) solution converged in (\S+) iterations`)
	completionRegex  = regexp.MustCompile(`^End$`)
)

// Output format strings for the extracted data files.
const (
	residualFmt   = "%15.5f %5d %15.6e %15.6e %5d\n"
	courantFmt    = "%15.5f %15.5e %15.5e\n"
	continuityFmt = "%15.5f %5d %15.6e %15.6e %15.6e\n"
	boundingFmt   = "%15.5f %5d %15.6e %15.6e %15.6e\n"
	execTimeFmt   = "%15.5f %15.5f %15.5f\n"
)

// Rule pairs a pattern with an action invoked for every matching log line.
// The action receives the submatches of the pattern.
type Rule struct {
	Regexp *regexp.Regexp
	Action func(groups []string) error
}

// LogProcessor extracts time histories from a solver log file into plain
// data files under the case's logs directory, one file per field.
type LogProcessor struct {
	// Time is the latest simulation time seen in the log.
	Time float64
	// Converged reports whether a steady solver announced convergence.
	Converged bool
	// ConvergedTime is the timestep at which the solver converged.
	ConvergedTime int
	// SolveCompleted reports whether the End marker was seen.
	SolveCompleted bool

	caseDir string
	logsDir string
	logFile string

	// corrs counts predictor sub-iterations per field within a timestep.
	corrs  map[string]int
	files  map[string]*os.File
	rules  []Rule
	logger *slog.Logger
}

// NewLogProcessor creates a processor for the named solver log, relative to
// casedir. Extracted histories are written under casedir/logsDir.
func NewLogProcessor(logfile, casedir, logsDir string) (*LogProcessor, error) {
	if casedir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		casedir = cwd
	}
	if logsDir == "" {
		logsDir = "logs"
	}
	ldir := filepath.Join(casedir, logsDir)
	if err := osutils.EnsureDir(ldir); err != nil {
		return nil, err
	}
	p := &LogProcessor{
		ConvergedTime: -1,
		caseDir:       casedir,
		logsDir:       ldir,
		logFile:       filepath.Join(casedir, logfile),
		corrs:         make(map[string]int),
		files:         make(map[string]*os.File),
		logger:        slog.Default(),
	}
	p.rules = p.builtinRules()
	return p, nil
}

// LogsDir returns the directory holding the extracted data files.
func (p *LogProcessor) LogsDir() string { return p.logsDir }

// AddRule registers a user-defined pattern processed alongside the builtin
// ones.
func (p *LogProcessor) AddRule(pattern string, action func(groups []string) error) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("bad log rule %q: %w", pattern, err)
	}
	p.rules = append(p.rules, Rule{Regexp: re, Action: action})
	return nil
}

func (p *LogProcessor) builtinRules() []Rule {
	return []Rule{
		{timeRegex, p.onTime},
		{courantRegex, p.onCourant},
		{residualRegex, p.onResidual},
		{boundingRegex, p.onBounding},
		{continuityRegex, p.onContinuity},
		{execTimeRegex, p.onExecTime},
		{convergenceRegex, p.onConvergence},
		{completionRegex, p.onCompletion},
	}
}

// dataFile returns the open handle for a named output, creating the file
// and writing its headers on first use.
func (p *LogProcessor) dataFile(name string, headers ...string) (*os.File, error) {
	if fh, ok := p.files[name]; ok {
		return fh, nil
	}
	fh, err := os.Create(filepath.Join(p.logsDir, name+".dat"))
	if err != nil {
		return nil, fmt.Errorf("creating log output: %w", err)
	}
	for _, h := range headers {
		fmt.Fprintln(fh, h)
	}
	p.files[name] = fh
	return fh, nil
}

func (p *LogProcessor) onTime(groups []string) error {
	t, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return nil
	}
	p.Time = t
	for k := range p.corrs {
		p.corrs[k] = 0
	}
	return nil
}

func (p *LogProcessor) onResidual(groups []string) error {
	solver, field := groups[1], groups[2]
	ires, _ := strconv.ParseFloat(groups[3], 64)
	fres, _ := strconv.ParseFloat(groups[4], 64)
	iters, _ := strconv.Atoi(groups[5])

	p.corrs[field]++
	fh, err := p.dataFile(field,
		fmt.Sprintf("# Field: %s; Solver: %s", field, solver),
		"Time SubIteration InitialResidual FinalResidual NoIterations")
	if err != nil {
		return err
	}
	fmt.Fprintf(fh, residualFmt, p.Time, p.corrs[field], ires, fres, iters)
	return nil
}

func (p *LogProcessor) onBounding(groups []string) error {
	field := "bounding_" + groups[1]
	bmin, _ := strconv.ParseFloat(groups[2], 64)
	bmax, _ := strconv.ParseFloat(groups[3], 64)
	bavg, _ := strconv.ParseFloat(groups[4], 64)

	p.corrs[field]++
	fh, err := p.dataFile(field,
		fmt.Sprintf("# Bounding Field: %s", groups[1]),
		"Time SubIteration Min Max Average")
	if err != nil {
		return err
	}
	fmt.Fprintf(fh, boundingFmt, p.Time, p.corrs[field], bmin, bmax, bavg)
	return nil
}

func (p *LogProcessor) onContinuity(groups []string) error {
	lce, _ := strconv.ParseFloat(groups[1], 64)
	gce, _ := strconv.ParseFloat(groups[2], 64)
	cce, _ := strconv.ParseFloat(groups[3], 64)

	p.corrs["continuity"]++
	fh, err := p.dataFile("continuity_errors",
		"Time SubIteration LocalError GlobalError CumulativeError")
	if err != nil {
		return err
	}
	fmt.Fprintf(fh, continuityFmt, p.Time, p.corrs["continuity"], lce, gce, cce)
	return nil
}

func (p *LogProcessor) onExecTime(groups []string) error {
	etime, _ := strconv.ParseFloat(groups[1], 64)
	ctime, _ := strconv.ParseFloat(groups[2], 64)
	fh, err := p.dataFile("clock_time", "Time ExecutionTime ClockTime")
	if err != nil {
		return err
	}
	fmt.Fprintf(fh, execTimeFmt, p.Time, etime, ctime)
	return nil
}

func (p *LogProcessor) onCourant(groups []string) error {
	cmean, _ := strconv.ParseFloat(groups[1], 64)
	cmax, _ := strconv.ParseFloat(groups[2], 64)
	fh, err := p.dataFile("courant", "Time CoMean CoMax")
	if err != nil {
		return err
	}
	fmt.Fprintf(fh, courantFmt, p.Time, cmean, cmax)
	return nil
}

func (p *LogProcessor) onConvergence(groups []string) error {
	p.Converged = true
	if t, err := strconv.Atoi(groups[2]); err == nil {
		p.ConvergedTime = t
	}
	return nil
}

func (p *LogProcessor) onCompletion(groups []string) error {
	p.SolveCompleted = true
	return nil
}

func (p *LogProcessor) processLine(line string) error {
	for _, rule := range p.rules {
		m := rule.Regexp.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if err := rule.Action(m); err != nil {
			return err
		}
	}
	return nil
}

func (p *LogProcessor) closeFiles() {
	for _, fh := range p.files {
		fh.Close()
	}
	p.files = make(map[string]*os.File)
}

// Process reads the complete log file and writes the extracted histories.
func (p *LogProcessor) Process() error {
	fh, err := os.Open(p.logFile)
	if err != nil {
		return fmt.Errorf("processing logs: %w", err)
	}
	defer fh.Close()
	defer p.closeFiles()

	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := p.processLine(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("processing logs: %w", err)
	}
	p.logger.Info("Processed solver log",
		"log", p.logFile, "time", p.Time, "completed", p.SolveCompleted)
	return nil
}

// Watch processes the log file as the solver writes it, returning when the
// solver reports completion or the context is cancelled.
func (p *LogProcessor) Watch(ctx context.Context) error {
	fh, err := os.Open(p.logFile)
	if err != nil {
		return fmt.Errorf("watching logs: %w", err)
	}
	defer fh.Close()
	defer p.closeFiles()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching logs: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(p.logFile)); err != nil {
		return fmt.Errorf("watching logs: %w", err)
	}

	reader := bufio.NewReader(fh)
	var partial []byte
	consume := func() error {
		for {
			chunk, err := reader.ReadBytes('\n')
			if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
				line := string(append(partial, chunk[:len(chunk)-1]...))
				partial = partial[:0]
				if perr := p.processLine(line); perr != nil {
					return perr
				}
			} else {
				// Hold an incomplete trailing line until more data
				// arrives.
				partial = append(partial, chunk...)
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	if err := consume(); err != nil {
		return err
	}
	for !p.SolveCompleted {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != p.logFile || !event.Has(fsnotify.Write) {
				continue
			}
			if err := consume(); err != nil {
				return err
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("Log watcher error", "error", werr)
		}
	}
	p.logger.Info("Solver completed", "log", p.logFile, "time", p.Time)
	return nil
}

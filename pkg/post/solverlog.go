package post

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// auxiliaryLogs lists extracted data files that are not field residuals.
var auxiliaryLogs = map[string]bool{
	"continuity_errors": true,
	"clock_time":        true,
	"courant":           true,
}

// SolverLog provides access to the data files extracted by LogProcessor.
type SolverLog struct {
	caseDir string
	logsDir string
	fields  []string
}

// LoadSolverLog opens the extracted logs of a case. logsDir is relative to
// casedir and defaults to "logs" when empty.
func LoadSolverLog(casedir, logsDir string) (*SolverLog, error) {
	if logsDir == "" {
		logsDir = "logs"
	}
	ldir := filepath.Join(casedir, logsDir)
	entries, err := os.ReadDir(ldir)
	if err != nil {
		return nil, fmt.Errorf("loading solver logs: %w", err)
	}
	var fields []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".dat") {
			continue
		}
		field := strings.TrimSuffix(name, ".dat")
		if auxiliaryLogs[field] || strings.HasPrefix(field, "bounding_") {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return &SolverLog{caseDir: casedir, logsDir: ldir, fields: fields}, nil
}

// Fields returns the solution fields with extracted residual histories.
func (s *SolverLog) Fields() []string { return s.fields }

// Residual returns the residual history for a field as rows of
// [time, subIteration, initialResidual, finalResidual, iterations].
func (s *SolverLog) Residual(field string) ([][]float64, error) {
	return LoadTable(filepath.Join(s.logsDir, field+".dat"))
}

// LoadTable reads a whitespace-separated numeric table, skipping comment
// and column header lines.
func LoadTable(path string) ([][]float64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading table: %w", err)
	}
	defer fh.Close()

	var rows [][]float64
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Force/moment histories wrap vector components in parentheses.
		line = strings.NewReplacer("(", " ", ")", " ").Replace(line)
		parts := strings.Fields(line)
		row := make([]float64, 0, len(parts))
		ok := true
		for _, part := range parts {
			val, err := strconv.ParseFloat(part, 64)
			if err != nil {
				ok = false
				break
			}
			row = append(row, val)
		}
		if ok && len(row) > 0 {
			rows = append(rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("loading table %s: %w", path, err)
	}
	return rows, nil
}

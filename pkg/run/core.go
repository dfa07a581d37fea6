// Package run executes Caelus CML programs and manages case directories.
package run

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caelus-cml/caelus/internal/osutils"
	"github.com/caelus-cml/caelus/pkg/dict"
)

// IsCaseDir reports whether root looks like a Caelus case directory: the
// constant and system directories and system/controlDict must exist. No
// check is made that the case would actually run or that a mesh is present.
func IsCaseDir(root string) bool {
	for _, entry := range []string{
		"constant",
		"system",
		filepath.Join("system", "controlDict"),
	} {
		if _, err := os.Stat(filepath.Join(root, entry)); err != nil {
			return false
		}
	}
	return true
}

// FindCaseDirs recursively searches basedir for case directories and returns
// their paths relative to basedir. The search does not descend into a case
// directory once found. When basedir itself is a case, the result is ".".
func FindCaseDirs(basedir string) ([]string, error) {
	absdir, err := osutils.Abspath(basedir)
	if err != nil {
		return nil, err
	}
	if IsCaseDir(absdir) {
		return []string{"."}, nil
	}
	var cases []string
	err = filepath.WalkDir(absdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == absdir {
			return nil
		}
		if IsCaseDir(path) {
			rel, rerr := filepath.Rel(absdir, path)
			if rerr != nil {
				return rerr
			}
			cases = append(cases, rel)
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching for cases under %s: %w", basedir, err)
	}
	return cases, nil
}

// FindRecipeDirs searches basedir for case directories that contain the
// named task file, returning paths relative to basedir.
func FindRecipeDirs(basedir, taskFile string) ([]string, error) {
	cases, err := FindCaseDirs(basedir)
	if err != nil {
		return nil, err
	}
	absdir, err := osutils.Abspath(basedir)
	if err != nil {
		return nil, err
	}
	var recipes []string
	for _, c := range cases {
		if _, err := os.Stat(filepath.Join(absdir, c, taskFile)); err == nil {
			recipes = append(recipes, c)
		}
	}
	return recipes, nil
}

// CloneOpts controls which parts of a template case are copied.
type CloneOpts struct {
	// SkipMesh omits constant/polyMesh from the clone.
	SkipMesh bool
	// SkipZero omits the 0 time directory.
	SkipZero bool
	// SkipScripts omits Allrun/Allclean style scripts.
	SkipScripts bool
	// ExtraPatterns adds glob patterns whose matches are never copied.
	ExtraPatterns []string
	// BaseDir is the directory the new case is created in; defaults to
	// the current working directory.
	BaseDir string
}

// cloneIgnoreDefaults lists entries never copied from a template case.
var cloneIgnoreDefaults = []string{
	"processor*", "postProcessing", "logs", "*.log", "*.foam",
}

// Clone creates a new case named caseName from the template case directory
// and returns the absolute path of the new case.
func Clone(template, caseName string, opts CloneOpts) (string, error) {
	srcdir, err := osutils.Abspath(template)
	if err != nil {
		return "", err
	}
	if !IsCaseDir(srcdir) {
		return "", fmt.Errorf("cloning %s: not a valid case directory", template)
	}
	basedir := opts.BaseDir
	if basedir == "" {
		if basedir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	destdir := filepath.Join(basedir, caseName)

	ignore := append([]string{}, opts.ExtraPatterns...)
	ignore = append(ignore, cloneIgnoreDefaults...)
	if opts.SkipMesh {
		ignore = append(ignore, "polyMesh")
	}
	if opts.SkipZero {
		ignore = append(ignore, "0")
	}
	if opts.SkipScripts {
		ignore = append(ignore, "All*", "*.py", "*.sh")
	}
	if err := osutils.CopyTree(srcdir, destdir, osutils.CopyOpts{Ignore: ignore}); err != nil {
		return "", fmt.Errorf("cloning %s: %w", template, err)
	}
	slog.Info("Cloned case", "template", srcdir, "case", destdir)
	return destdir, nil
}

// CleanOpts controls what Clean removes from a case directory.
type CleanOpts struct {
	// PreserveZero keeps the 0 time directory.
	PreserveZero bool
	// PurgeMesh also removes constant/polyMesh.
	PurgeMesh bool
	// PreserveExtra lists glob patterns whose matches are kept.
	PreserveExtra []string
}

// DefaultCleanOpts returns the standard cleaning behavior: time
// directories, decomposed processor directories, and logs are removed while
// the 0 directory and the mesh are kept.
func DefaultCleanOpts() CleanOpts {
	return CleanOpts{PreserveZero: true}
}

func isTimeDir(name string) bool {
	_, err := strconv.ParseFloat(name, 64)
	return err == nil
}

// Clean removes generated output from a case directory.
func Clean(casedir string, opts CleanOpts) error {
	absdir, err := osutils.Abspath(casedir)
	if err != nil {
		return err
	}
	if !IsCaseDir(absdir) {
		return fmt.Errorf("cleaning %s: not a valid case directory", casedir)
	}
	entries, err := os.ReadDir(absdir)
	if err != nil {
		return fmt.Errorf("cleaning %s: %w", casedir, err)
	}

	removeDefaults := []string{"processor*", "logs", "postProcessing", "*.log", "*.foam"}
	preserved := func(name string) bool {
		for _, pat := range opts.PreserveExtra {
			if ok, _ := filepath.Match(pat, name); ok {
				return true
			}
		}
		return false
	}

	for _, entry := range entries {
		name := entry.Name()
		if preserved(name) {
			continue
		}
		remove := false
		if entry.IsDir() && isTimeDir(name) {
			remove = !(opts.PreserveZero && name == "0")
		}
		for _, pat := range removeDefaults {
			if ok, _ := filepath.Match(pat, name); ok {
				remove = true
				break
			}
		}
		if !remove {
			continue
		}
		if err := os.RemoveAll(filepath.Join(absdir, name)); err != nil {
			return fmt.Errorf("cleaning %s: %w", casedir, err)
		}
		slog.Debug("Removed case entry", "case", absdir, "entry", name)
	}
	if opts.PurgeMesh {
		mesh := filepath.Join(absdir, "constant", "polyMesh")
		if err := os.RemoveAll(mesh); err != nil {
			return fmt.Errorf("purging mesh in %s: %w", casedir, err)
		}
		slog.Debug("Removed mesh", "case", absdir)
	}
	return nil
}

// MPISize returns the number of MPI ranks for a case, read from
// numberOfSubdomains in system/decomposeParDict.
func MPISize(casedir string) (int, error) {
	df, err := dict.LoadDecomposeParDict(casedir)
	if err != nil {
		return 0, fmt.Errorf("determining MPI size for %s: %w", casedir, err)
	}
	val, ok := df.Get("numberOfSubdomains")
	if !ok {
		return 0, fmt.Errorf("determining MPI size for %s: numberOfSubdomains not set", casedir)
	}
	switch n := val.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("determining MPI size for %s: numberOfSubdomains is not a number", casedir)
	}
}

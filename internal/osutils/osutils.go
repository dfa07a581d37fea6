// Package osutils provides filesystem helpers shared by the Caelus tools.
package osutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Abspath expands "~" and environment variables in path and returns the
// absolute form.
func Abspath(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~"+string(os.PathSeparator)) || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home directory: %w", err)
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving path %s: %w", path, err)
	}
	return abs, nil
}

// EnsureDir creates the directory and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// CopyOpts controls CopyTree behavior.
type CopyOpts struct {
	// Ignore holds glob patterns matched against base names; matching
	// entries are skipped.
	Ignore []string
	// PreserveSymlinks recreates symlinks rather than copying their
	// targets.
	PreserveSymlinks bool
}

func ignored(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// CopyTree recursively copies src to dst. dst must not already exist.
func CopyTree(src, dst string, opts CopyOpts) error {
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("copying %s: not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("copying to %s: destination exists", dst)
	}
	return copyTree(src, dst, opts)
}

func copyTree(src, dst string, opts CopyOpts) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	for _, entry := range entries {
		if ignored(entry.Name(), opts.Ignore) {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.Type()&os.ModeSymlink != 0 {
			if opts.PreserveSymlinks {
				target, err := os.Readlink(srcPath)
				if err != nil {
					return fmt.Errorf("reading link %s: %w", srcPath, err)
				}
				if err := os.Symlink(target, dstPath); err != nil {
					return fmt.Errorf("creating link %s: %w", dstPath, err)
				}
				continue
			}
			resolved, err := filepath.EvalSymlinks(srcPath)
			if err != nil {
				return fmt.Errorf("resolving link %s: %w", srcPath, err)
			}
			rinfo, err := os.Stat(resolved)
			if err != nil {
				return fmt.Errorf("resolving link %s: %w", srcPath, err)
			}
			if rinfo.IsDir() {
				if err := copyTree(resolved, dstPath, opts); err != nil {
					return err
				}
			} else if err := copyFile(resolved, dstPath); err != nil {
				return err
			}
			continue
		}
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath, opts); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s: %w", dst, err)
	}
	return out.Close()
}

// RemoveGlob deletes all filesystem entries matching the glob pattern and
// returns the removed paths.
func RemoveGlob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return nil, fmt.Errorf("removing %s: %w", m, err)
		}
	}
	return matches, nil
}

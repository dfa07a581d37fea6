package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrNoVersions is returned when no valid CML installation can be found.
var ErrNoVersions = errors.New("no valid Caelus CML versions found")

// CMLEnv represents one installed Caelus CML version and resolves the
// directories and process environment needed to run its executables.
type CMLEnv struct {
	version    string
	projectDir string
	buildDir   string
	mpiRoot    string
}

// NewCMLEnv resolves a configured CML version entry into an environment.
func NewCMLEnv(ver CMLVersion) *CMLEnv {
	projectDir := ver.Path
	if projectDir == "" {
		projectDir = filepath.Join(RootDir(), "caelus-"+ver.Version)
	}
	buildDir := ver.PlatformInstall
	if buildDir == "" {
		buildDir = determinePlatformDir(projectDir)
	}
	mpiRoot := ver.MPIRoot
	if mpiRoot == "" {
		mpiRoot = discoverMPIRoot(projectDir)
	}
	return &CMLEnv{
		version:    ver.Version,
		projectDir: projectDir,
		buildDir:   buildDir,
		mpiRoot:    mpiRoot,
	}
}

// OSType returns one of "linux", "darwin", "windows".
func OSType() string { return runtime.GOOS }

// determinePlatformDir probes the conventional build directory names,
// e.g. platforms/linux64g++DPOpt.
func determinePlatformDir(projectDir string) string {
	base := filepath.Join(projectDir, "platforms")
	if _, err := os.Stat(base); err != nil {
		return ""
	}
	archTypes := []string{"64", "32"}
	precTypes := []string{"DP", "SP"}
	optTypes := []string{"Opt", "Prof", "Debug"}
	compilers := []string{"g++", "icpc", "clang++"}
	for _, at := range archTypes {
		for _, pt := range precTypes {
			for _, ot := range optTypes {
				for _, ct := range compilers {
					name := OSType() + at + ct + pt + ot
					dir := filepath.Join(base, name)
					if _, err := os.Stat(dir); err == nil {
						return dir
					}
				}
			}
		}
	}
	return ""
}

// discoverMPIRoot locates a bundled MPI installation under the project's
// external directory.
func discoverMPIRoot(projectDir string) string {
	pattern := filepath.Join(projectDir, "external", OSType(), "openmpi-*")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// Version returns the CML version string.
func (e *CMLEnv) Version() string { return e.version }

// ProjectDir returns the installation directory, typically
// ~/Caelus/caelus-VERSION.
func (e *CMLEnv) ProjectDir() string { return e.projectDir }

// Root returns the parent of the project directory.
func (e *CMLEnv) Root() string { return filepath.Dir(e.projectDir) }

// BuildDir returns the platform build directory, or an error when the
// installation has no compiled platform.
func (e *CMLEnv) BuildDir() (string, error) {
	if e.buildDir == "" {
		return "", fmt.Errorf("cannot find Caelus platform directory under %s", e.projectDir)
	}
	if _, err := os.Stat(e.buildDir); err != nil {
		return "", fmt.Errorf("cannot find Caelus platform directory: %s", e.buildDir)
	}
	return e.buildDir, nil
}

// BuildOption returns the platform directory name, e.g. linux64g++DPOpt.
func (e *CMLEnv) BuildOption() string { return filepath.Base(e.buildDir) }

// BinDir returns the executable directory of the platform build.
func (e *CMLEnv) BinDir() string { return filepath.Join(e.buildDir, "bin") }

// LibDir returns the library directory of the platform build.
func (e *CMLEnv) LibDir() string { return filepath.Join(e.buildDir, "lib") }

// MPIBinDir returns the bundled MPI executable directory, if any.
func (e *CMLEnv) MPIBinDir() string {
	if e.mpiRoot == "" {
		return ""
	}
	return filepath.Join(e.mpiRoot, "bin")
}

// MPILibDir returns the bundled MPI library directory, if any.
func (e *CMLEnv) MPILibDir() string {
	if e.mpiRoot == "" {
		return ""
	}
	return filepath.Join(e.mpiRoot, "lib")
}

// TutorialsDir returns the tutorials directory of the installation.
func (e *CMLEnv) TutorialsDir() string { return filepath.Join(e.projectDir, "tutorials") }

func libPathVar() string {
	if OSType() == "darwin" {
		return "DYLD_FALLBACK_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// Environ returns the process environment for executing CML programs:
// the current environment with the installation's paths and project
// variables applied.
func (e *CMLEnv) Environ() []string {
	overrides := map[string]string{
		"PROJECT":            "caelus-" + e.version,
		"PROJECT_VER":        e.version,
		"PROJECT_DIR":        e.Root(),
		"CAELUS_PROJECT_DIR": e.projectDir,
		"BUILD_OPTION":       e.BuildOption(),
		"EXTERNAL_DIR":       filepath.Join(e.projectDir, "external"),
		"LIB_SRC":            filepath.Join(e.projectDir, "src", "libraries"),
		"CAELUS_APP":         filepath.Join(e.projectDir, "src", "applications"),
		"CAELUS_SOLVERS":     filepath.Join(e.projectDir, "src", "applications", "solvers"),
		"CAELUS_UTILITIES":   filepath.Join(e.projectDir, "src", "applications", "utilities"),
		"CAELUS_TUTORIALS":   e.TutorialsDir(),
		"MPI_BUFFER_SIZE":    "20000000",
		"OPAL_PREFIX":        e.mpiRoot,
		"MPI_LIB_PATH":       e.MPILibDir(),
	}

	env := os.Environ()
	out := make([]string, 0, len(env)+len(overrides))
	libVar := libPathVar()
	libSeen := false
	for _, kv := range env {
		key, val, _ := strings.Cut(kv, "=")
		switch {
		case key == "PATH":
			val = prependPath(val, e.BinDir(), e.MPIBinDir())
		case key == libVar:
			val = prependPath(val, e.LibDir(), e.MPILibDir())
			libSeen = true
		default:
			if _, ok := overrides[key]; !ok {
				out = append(out, kv)
				continue
			}
			continue
		}
		out = append(out, key+"="+val)
		delete(overrides, key)
	}
	if !libSeen {
		out = append(out, libVar+"="+prependPath("", e.LibDir(), e.MPILibDir()))
	}
	for key, val := range overrides {
		out = append(out, key+"="+val)
	}
	return out
}

func prependPath(existing string, dirs ...string) string {
	parts := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		if d != "" {
			parts = append(parts, d)
		}
	}
	if existing != "" {
		parts = append(parts, existing)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// DiscoverVersions scans root for caelus-* installation directories.
func DiscoverVersions(root string) []CMLVersion {
	matches, err := filepath.Glob(filepath.Join(root, "caelus-*"))
	if err != nil {
		return nil
	}
	var versions []CMLVersion
	for _, path := range matches {
		base := filepath.Base(path)
		idx := strings.LastIndex(base, "-")
		if idx < 0 || idx == len(base)-1 {
			continue
		}
		versions = append(versions, CMLVersion{
			Version: base[idx+1:],
			Path:    path,
		})
	}
	return versions
}

// EnvManager resolves CML environments from the user configuration,
// falling back to filesystem discovery when none are configured.
type EnvManager struct {
	cfg      *Config
	logger   *slog.Logger
	versions map[string]*CMLEnv
	loaded   bool
}

// NewEnvManager creates a manager over the given configuration.
func NewEnvManager(cfg *Config, logger *slog.Logger) *EnvManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvManager{cfg: cfg, logger: logger, versions: make(map[string]*CMLEnv)}
}

func (m *EnvManager) init() {
	if m.loaded {
		return
	}
	m.loaded = true

	configured := m.cfg.Caelus.CaelusCML.Versions
	valid := make([]CMLVersion, 0, len(configured))
	for _, ver := range configured {
		if ver.Version == "" {
			continue
		}
		path := ver.Path
		if path == "" {
			path = filepath.Join(RootDir(), "caelus-"+ver.Version)
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		valid = append(valid, ver)
	}
	if len(configured) > 0 && len(valid) == 0 {
		m.logger.Warn("No valid versions in configuration; discovering installed versions",
			"root", RootDir())
	}
	if len(valid) == 0 {
		valid = DiscoverVersions(RootDir())
	}
	for _, ver := range valid {
		env := NewCMLEnv(ver)
		m.versions[env.Version()] = env
	}
}

// Latest returns the environment for the highest installed version.
func (m *EnvManager) Latest() (*CMLEnv, error) {
	m.init()
	if len(m.versions) == 0 {
		return nil, ErrNoVersions
	}
	keys := make([]string, 0, len(m.versions))
	for k := range m.versions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return versionLess(keys[j], keys[i]) })
	return m.versions[keys[0]], nil
}

// Version returns the environment for the requested version. An empty
// version selects the configured default.
func (m *EnvManager) Version(version string) (*CMLEnv, error) {
	m.init()
	key := version
	if key == "" {
		key = m.cfg.Caelus.CaelusCML.Default
	}
	if key == "" || key == "latest" {
		return m.Latest()
	}
	env, ok := m.versions[key]
	if !ok {
		return nil, fmt.Errorf("invalid CML version requested: %s: %w", key, ErrNoVersions)
	}
	return env, nil
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeInstall creates a fake CML installation tree and returns its path.
func makeInstall(t *testing.T, root, version string) string {
	t.Helper()
	project := filepath.Join(root, "caelus-"+version)
	platform := filepath.Join(project, "platforms", runtime.GOOS+"64g++DPOpt")
	for _, dir := range []string{
		filepath.Join(platform, "bin"),
		filepath.Join(platform, "lib"),
		filepath.Join(project, "tutorials"),
	} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return project
}

func TestDiscoverVersions(t *testing.T) {
	root := t.TempDir()
	makeInstall(t, root, "9.04")
	makeInstall(t, root, "10.11")

	versions := DiscoverVersions(root)
	require.Len(t, versions, 2)
	got := []string{versions[0].Version, versions[1].Version}
	assert.Contains(t, got, "9.04")
	assert.Contains(t, got, "10.11")
}

func TestEnvManagerLatest(t *testing.T) {
	root := t.TempDir()
	p904 := makeInstall(t, root, "9.04")
	p1011 := makeInstall(t, root, "10.11")

	cfg := Default()
	cfg.Caelus.CaelusCML.Versions = []CMLVersion{
		{Version: "9.04", Path: p904},
		{Version: "10.11", Path: p1011},
	}
	mgr := NewEnvManager(cfg, nil)

	latest, err := mgr.Latest()
	require.NoError(t, err)
	assert.Equal(t, "10.11", latest.Version())

	env, err := mgr.Version("9.04")
	require.NoError(t, err)
	assert.Equal(t, p904, env.ProjectDir())

	_, err = mgr.Version("7.04")
	require.ErrorIs(t, err, ErrNoVersions)
}

func TestEnvManagerFiltersMissingPaths(t *testing.T) {
	root := t.TempDir()
	p904 := makeInstall(t, root, "9.04")

	cfg := Default()
	cfg.Caelus.CaelusCML.Versions = []CMLVersion{
		{Version: "9.04", Path: p904},
		{Version: "11.01", Path: filepath.Join(root, "caelus-11.01")},
	}
	mgr := NewEnvManager(cfg, nil)

	latest, err := mgr.Latest()
	require.NoError(t, err)
	assert.Equal(t, "9.04", latest.Version(), "missing installs are skipped")
}

func TestEnvManagerNoVersions(t *testing.T) {
	cfg := Default()
	cfg.Caelus.CaelusCML.Versions = []CMLVersion{
		{Version: "1.0", Path: filepath.Join(t.TempDir(), "missing")},
	}
	mgr := NewEnvManager(cfg, nil)
	_, err := mgr.Latest()
	// Falls back to discovery under the real root; absent installs there
	// must yield ErrNoVersions rather than a panic.
	if err != nil {
		assert.ErrorIs(t, err, ErrNoVersions)
	}
}

func TestCMLEnvDirs(t *testing.T) {
	root := t.TempDir()
	project := makeInstall(t, root, "9.04")
	env := NewCMLEnv(CMLVersion{Version: "9.04", Path: project})

	build, err := env.BuildDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, "platforms", runtime.GOOS+"64g++DPOpt"), build)
	assert.Equal(t, filepath.Join(build, "bin"), env.BinDir())
	assert.Equal(t, filepath.Join(build, "lib"), env.LibDir())
	assert.Equal(t, runtime.GOOS+"64g++DPOpt", env.BuildOption())
	assert.Equal(t, root, env.Root())
}

func TestCMLEnvEnviron(t *testing.T) {
	root := t.TempDir()
	project := makeInstall(t, root, "9.04")
	env := NewCMLEnv(CMLVersion{Version: "9.04", Path: project})

	environ := env.Environ()
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, val, _ := strings.Cut(kv, "=")
		vars[key] = val
	}

	assert.Equal(t, project, vars["CAELUS_PROJECT_DIR"])
	assert.Equal(t, "9.04", vars["PROJECT_VER"])
	assert.Equal(t, filepath.Join(project, "tutorials"), vars["CAELUS_TUTORIALS"])
	assert.True(t, strings.HasPrefix(vars["PATH"], env.BinDir()),
		"PATH must start with the CML bin directory, got %q", vars["PATH"])
	assert.Contains(t, vars[libPathVar()], env.LibDir())
}

func TestCMLEnvEnvironPreservesLibPath(t *testing.T) {
	root := t.TempDir()
	project := makeInstall(t, root, "9.04")
	env := NewCMLEnv(CMLVersion{Version: "9.04", Path: project})

	t.Setenv(libPathVar(), "/opt/site/lib")
	var values []string
	for _, kv := range env.Environ() {
		key, val, _ := strings.Cut(kv, "=")
		if key == libPathVar() {
			values = append(values, val)
		}
	}
	// A pre-set library path must yield exactly one entry, with the CML
	// directories prepended and the original path retained.
	require.Len(t, values, 1)
	assert.True(t, strings.HasPrefix(values[0], env.LibDir()))
	assert.Contains(t, values[0], "/opt/site/lib")
}

func TestCMLEnvMissingBuildDir(t *testing.T) {
	project := filepath.Join(t.TempDir(), "caelus-5.0")
	require.NoError(t, os.MkdirAll(project, 0o755))
	env := NewCMLEnv(CMLVersion{Version: "5.0", Path: project})
	_, err := env.BuildDir()
	require.Error(t, err)
}

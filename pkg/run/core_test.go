package run

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelus-cml/caelus/pkg/dict"
)

// makeCase creates a minimal case directory structure under root.
func makeCase(t *testing.T, root string) string {
	t.Helper()
	for _, dir := range []string{
		filepath.Join(root, "system"),
		filepath.Join(root, "constant", "polyMesh"),
		filepath.Join(root, "0"),
	} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	cd := dict.NewControlDict()
	require.NoError(t, cd.Write(filepath.Join(root, dict.ControlDictPath)))
	return root
}

func TestIsCaseDir(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	assert.True(t, IsCaseDir(casedir))
	assert.False(t, IsCaseDir(t.TempDir()))
}

func TestFindCaseDirs(t *testing.T) {
	base := t.TempDir()
	makeCase(t, filepath.Join(base, "cavity"))
	makeCase(t, filepath.Join(base, "incompressible", "channel"))
	// A nested case inside a case must not be reported.
	makeCase(t, filepath.Join(base, "cavity", "inner"))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "notacase"), 0o755))

	cases, err := FindCaseDirs(base)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"cavity",
		filepath.Join("incompressible", "channel"),
	}, cases)
}

func TestFindCaseDirsSelf(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	cases, err := FindCaseDirs(casedir)
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, cases)
}

func TestFindRecipeDirs(t *testing.T) {
	base := t.TempDir()
	withRecipe := makeCase(t, filepath.Join(base, "cavity"))
	makeCase(t, filepath.Join(base, "channel"))
	require.NoError(t, os.WriteFile(
		filepath.Join(withRecipe, "run_tutorial.yaml"), []byte("tasks: []\n"), 0o644))

	recipes, err := FindRecipeDirs(base, "run_tutorial.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"cavity"}, recipes)
}

func TestClone(t *testing.T) {
	template := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	for _, extra := range []string{
		filepath.Join("processor0", "dummy"),
		filepath.Join("logs", "p.dat"),
		"solver.log",
		"Allrun",
	} {
		path := filepath.Join(template, extra)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	basedir := t.TempDir()
	cloned, err := Clone(template, "cavity_fine", CloneOpts{BaseDir: basedir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(basedir, "cavity_fine"), cloned)
	assert.True(t, IsCaseDir(cloned))
	assert.DirExists(t, filepath.Join(cloned, "constant", "polyMesh"))
	// Generated outputs never travel with a clone.
	assert.NoDirExists(t, filepath.Join(cloned, "processor0"))
	assert.NoDirExists(t, filepath.Join(cloned, "logs"))
	assert.NoFileExists(t, filepath.Join(cloned, "solver.log"))
	assert.FileExists(t, filepath.Join(cloned, "Allrun"))
}

func TestCloneSkips(t *testing.T) {
	template := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	require.NoError(t, os.WriteFile(filepath.Join(template, "Allrun"), []byte("x"), 0o755))

	cloned, err := Clone(template, "bare", CloneOpts{
		BaseDir:     t.TempDir(),
		SkipMesh:    true,
		SkipZero:    true,
		SkipScripts: true,
	})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(cloned, "constant", "polyMesh"))
	assert.NoDirExists(t, filepath.Join(cloned, "0"))
	assert.NoFileExists(t, filepath.Join(cloned, "Allrun"))
}

func TestCloneRejectsNonCase(t *testing.T) {
	_, err := Clone(t.TempDir(), "bad", CloneOpts{BaseDir: t.TempDir()})
	require.Error(t, err)
}

func TestClean(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	for _, dir := range []string{"0.5", "1", "processor0", "processor1", "logs", "postProcessing"} {
		require.NoError(t, os.MkdirAll(filepath.Join(casedir, dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(casedir, "solver.log"), []byte("x"), 0o644))

	require.NoError(t, Clean(casedir, DefaultCleanOpts()))
	assert.DirExists(t, filepath.Join(casedir, "0"), "0 directory is preserved by default")
	assert.DirExists(t, filepath.Join(casedir, "constant", "polyMesh"))
	assert.NoDirExists(t, filepath.Join(casedir, "0.5"))
	assert.NoDirExists(t, filepath.Join(casedir, "1"))
	assert.NoDirExists(t, filepath.Join(casedir, "processor0"))
	assert.NoDirExists(t, filepath.Join(casedir, "logs"))
	assert.NoFileExists(t, filepath.Join(casedir, "solver.log"))
}

func TestCleanRemoveZeroAndMesh(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	opts := DefaultCleanOpts()
	opts.PreserveZero = false
	opts.PurgeMesh = true
	require.NoError(t, Clean(casedir, opts))
	assert.NoDirExists(t, filepath.Join(casedir, "0"))
	assert.NoDirExists(t, filepath.Join(casedir, "constant", "polyMesh"))
}

func TestCleanPreserveExtra(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	require.NoError(t, os.MkdirAll(filepath.Join(casedir, "100"), 0o755))
	opts := DefaultCleanOpts()
	opts.PreserveExtra = []string{"10*"}
	require.NoError(t, Clean(casedir, opts))
	assert.DirExists(t, filepath.Join(casedir, "100"))
}

func TestMPISize(t *testing.T) {
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	dp := dict.NewDecomposeParDict()
	require.NoError(t, dp.Set("numberOfSubdomains", 8))
	require.NoError(t, dp.Write(filepath.Join(casedir, dict.DecomposeParPath)))

	ranks, err := MPISize(casedir)
	require.NoError(t, err)
	assert.Equal(t, 8, ranks)
}

func TestMPISizeDefaults(t *testing.T) {
	// Without a decomposeParDict on disk the standard default applies.
	casedir := makeCase(t, filepath.Join(t.TempDir(), "cavity"))
	ranks, err := MPISize(casedir)
	require.NoError(t, err)
	assert.Equal(t, 4, ranks)
}

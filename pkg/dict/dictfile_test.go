package dict

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlDictDefaults(t *testing.T) {
	cd := NewControlDict()
	assert.Equal(t, "pisoSolver", cd.GetString("application"))
	assert.Equal(t, "latestTime", cd.GetString("startFrom"))
	assert.Equal(t, "ascii", cd.GetString("writeFormat"))
	assert.False(t, cd.Data.Has("endTime"), "entries without defaults stay unset")
}

func TestControlDictValidatedSetters(t *testing.T) {
	cd := NewControlDict()
	require.NoError(t, cd.Set("startFrom", "firstTime"))
	assert.Equal(t, "firstTime", cd.GetString("startFrom"))

	err := cd.Set("startFrom", "sometime")
	require.Error(t, err)
	assert.Equal(t, "firstTime", cd.GetString("startFrom"), "invalid set leaves value untouched")

	// Unrestricted entries accept anything.
	require.NoError(t, cd.Set("endTime", 0.5))
	require.NoError(t, cd.Set("application", "simpleSolver"))
}

func TestFileWriteLoad(t *testing.T) {
	casedir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(casedir, "system"), 0o755))

	cd := NewControlDict()
	require.NoError(t, cd.Set("endTime", int64(100)))
	require.NoError(t, cd.Set("deltaT", 0.001))
	require.NoError(t, cd.Write(filepath.Join(casedir, ControlDictPath)))

	loaded, err := LoadControlDict(casedir)
	require.NoError(t, err)
	assert.Equal(t, "controlDict", loaded.Header.GetString("object"))
	assert.Equal(t, int64(100), mustGet(t, loaded.Data, "endTime"))
	assert.Equal(t, 0.001, mustGet(t, loaded.Data, "deltaT"))
	assert.False(t, loaded.Data.Has("FoamFile"), "header is split from the body")
}

func TestReadIfPresentMissingFile(t *testing.T) {
	f, err := LoadDecomposeParDict(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int64(4), mustGet(t, f.Data, "numberOfSubdomains"))
	assert.Equal(t, "scotch", f.GetString("method"))
}

func TestLoadSizeLimit(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "hugeField")
	require.NoError(t, os.WriteFile(name, make([]byte, sizeLimit+1), 0o644))
	_, err := Load(name)
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestTurbulenceModelFiles(t *testing.T) {
	ras := NewRASProperties()
	ras.SetModel("kOmegaSST")
	assert.Equal(t, "kOmegaSST", ras.Model())
	require.NotNil(t, ras.Data.GetDict("kOmegaSSTCoeffs"))

	les := NewLESProperties()
	assert.Equal(t, "cubeRootVol", les.GetString("delta"))
	coeffs := les.Data.GetDict("cubeRootVolCoeffs")
	require.NotNil(t, coeffs)
	assert.Equal(t, int64(1), mustGet(t, coeffs, "deltaCoeff"))
}

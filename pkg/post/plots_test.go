package post

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResidualsHist(t *testing.T) {
	_, casedir := processSample(t, sampleLog)

	p := NewPlotter(casedir, "")
	require.NoError(t, p.ResidualsHist("residuals.png", nil))
	info, err := os.Stat(filepath.Join(casedir, "results", "residuals.png"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestResidualsHistSelectedFields(t *testing.T) {
	_, casedir := processSample(t, sampleLog)

	p := NewPlotter(casedir, "plots")
	require.NoError(t, p.ResidualsHist("p.png", []string{"p"}))
	assert.FileExists(t, filepath.Join(casedir, "plots", "p.png"))
}

func writeForceHistory(t *testing.T, casedir, funcObject, filename string) {
	t.Helper()
	dir := filepath.Join(casedir, "postProcessing", funcObject, "0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := `# Force history
0.1 0.0 0.5 1.2
0.2 0.0 0.45 1.25
0.3 0.0 0.42 1.3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(body), 0o644))
}

func TestForceCoeffsHist(t *testing.T) {
	casedir := t.TempDir()
	writeForceHistory(t, casedir, "forceCoeffs", "forceCoeffs.dat")

	p := NewPlotter(casedir, "")
	require.NoError(t, p.ForceCoeffsHist("coeffs.png", ""))
	assert.FileExists(t, filepath.Join(casedir, "results", "coeffs.png"))
}

func TestForcesHist(t *testing.T) {
	casedir := t.TempDir()
	writeForceHistory(t, casedir, "forces", "forces.dat")

	p := NewPlotter(casedir, "")
	require.NoError(t, p.ForcesHist("forces.png", ""))
	assert.FileExists(t, filepath.Join(casedir, "results", "forces.png"))
}

func TestForcePlotMissingData(t *testing.T) {
	p := NewPlotter(t.TempDir(), "")
	require.Error(t, p.ForcesHist("forces.png", ""))
}

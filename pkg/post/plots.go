package post

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/caelus-cml/caelus/internal/osutils"
)

// Plotter renders convergence and force histories of a case to image files
// under the case's results directory.
type Plotter struct {
	caseDir string
	plotDir string
	log     *SolverLog
	logger  *slog.Logger
}

// NewPlotter creates a plotter for a case. plotDir is relative to casedir
// and defaults to "results" when empty.
func NewPlotter(casedir, plotDir string) *Plotter {
	if plotDir == "" {
		plotDir = "results"
	}
	return &Plotter{
		caseDir: casedir,
		plotDir: filepath.Join(casedir, plotDir),
		logger:  slog.Default(),
	}
}

func (p *Plotter) solverLog() (*SolverLog, error) {
	if p.log != nil {
		return p.log, nil
	}
	log, err := LoadSolverLog(p.caseDir, "")
	if err != nil {
		return nil, err
	}
	p.log = log
	return log, nil
}

func (p *Plotter) save(fig *vgimg.Canvas, plotfile string) error {
	if err := osutils.EnsureDir(p.plotDir); err != nil {
		return err
	}
	outfile := filepath.Join(p.plotDir, plotfile)
	fh, err := os.Create(outfile)
	if err != nil {
		return fmt.Errorf("saving figure: %w", err)
	}
	defer fh.Close()
	png := vgimg.PngCanvas{Canvas: fig}
	if _, err := png.WriteTo(fh); err != nil {
		return fmt.Errorf("saving figure: %w", err)
	}
	p.logger.Info("Saved figure", "file", outfile)
	return nil
}

// ResidualsHist plots the initial-residual time history of the given
// fields, or all fields when none are named, and saves it to plotfile.
func (p *Plotter) ResidualsHist(plotfile string, fields []string) error {
	log, err := p.solverLog()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		fields = log.Fields()
	}

	fig := plot.New()
	fig.X.Label.Text = "Time"
	fig.Y.Label.Text = "Residuals"
	fig.Y.Scale = plot.LogScale{}
	fig.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	fig.Add(plotter.NewGrid())

	for i, field := range fields {
		res, err := log.Residual(field)
		if err != nil {
			return err
		}
		// Keep only initial residuals: the first sub-iteration of each
		// timestep.
		var pts plotter.XYs
		for _, row := range res {
			if len(row) >= 3 && row[1] == 1 {
				pts = append(pts, plotter.XY{X: row[0], Y: row[2]})
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plotting %s residuals: %w", field, err)
		}
		line.Color = plotutil.Color(i)
		fig.Add(line)
		fig.Legend.Add(field, line)
	}

	img := vgimg.New(6*vg.Inch, 4*vg.Inch)
	fig.Draw(draw.New(img))
	return p.save(img, plotfile)
}

// latestTimeDir returns the newest time directory under a postProcessing
// function object directory.
func latestTimeDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}
	var times []string
	for _, entry := range entries {
		if entry.IsDir() {
			times = append(times, entry.Name())
		}
	}
	if len(times) == 0 {
		return "", fmt.Errorf("no data under %s", root)
	}
	sort.Strings(times)
	return filepath.Join(root, times[len(times)-1]), nil
}

// forcePlot renders the stacked time histories of three force columns.
func (p *Plotter) forcePlot(funcObject, filename, plotfile string, labels []string) error {
	root := filepath.Join(p.caseDir, "postProcessing", funcObject)
	timedir, err := latestTimeDir(root)
	if err != nil {
		return fmt.Errorf("cannot find %s data for plotting: %w", funcObject, err)
	}
	hist, err := LoadTable(filepath.Join(timedir, filename))
	if err != nil {
		return err
	}
	if len(hist) == 0 || len(hist[0]) < 4 {
		return fmt.Errorf("no usable %s history in %s", funcObject, timedir)
	}

	rows := make([][]*plot.Plot, len(labels))
	for i, label := range labels {
		fig := plot.New()
		fig.Y.Label.Text = label
		fig.Add(plotter.NewGrid())
		if i == len(labels)-1 {
			fig.X.Label.Text = "Time"
		}
		var pts plotter.XYs
		col := 3 - i
		for _, row := range hist {
			if len(row) > col {
				pts = append(pts, plotter.XY{X: row[0], Y: row[col]})
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", funcObject, err)
		}
		line.Color = plotutil.Color(i)
		fig.Add(line)
		rows[i] = []*plot.Plot{fig}
	}

	img := vgimg.New(6*vg.Inch, 7.5*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: len(labels), Cols: 1, PadY: vg.Millimeter * 2}
	canvases := plot.Align(rows, tiles, dc)
	for i := range rows {
		rows[i][0].Draw(canvases[i][0])
	}
	return p.save(img, plotfile)
}

// ForceCoeffsHist plots lift, drag and moment coefficient histories from
// the named function object.
func (p *Plotter) ForceCoeffsHist(plotfile, funcObject string) error {
	if funcObject == "" {
		funcObject = "forceCoeffs"
	}
	return p.forcePlot(funcObject, "forceCoeffs.dat", plotfile, []string{"Cl", "Cd", "Cm"})
}

// ForcesHist plots lift, drag and moment histories from the named function
// object.
func (p *Plotter) ForcesHist(plotfile, funcObject string) error {
	if funcObject == "" {
		funcObject = "forces"
	}
	return p.forcePlot(funcObject, "forces.dat", plotfile, []string{"Lift", "Drag", "Moment"})
}

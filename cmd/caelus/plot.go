package main

import (
	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/pkg/post"
)

func newPlotCmd(app *appContext) *cobra.Command {
	var (
		caseDir     string
		plotDir     string
		fields      []string
		plotFile    string
		forces      bool
		forceCoeffs bool
		funcObject  string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "plot residual and force histories",
		Long: "Plot the residual time history of a run, or the force and " +
			"force coefficient histories recorded by function objects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := post.NewPlotter(caseDir, plotDir)
			switch {
			case forces:
				if plotFile == "" {
					plotFile = "forces.png"
				}
				return p.ForcesHist(plotFile, funcObject)
			case forceCoeffs:
				if plotFile == "" {
					plotFile = "forceCoeffs.png"
				}
				return p.ForceCoeffsHist(plotFile, funcObject)
			default:
				if plotFile == "" {
					plotFile = "residuals.png"
				}
				return p.ResidualsHist(plotFile, fields)
			}
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&caseDir, "case-dir", "d", ".", "path to the case directory")
	flags.StringVar(&plotDir, "plot-dir", "results", "directory where figures are saved")
	flags.StringSliceVarP(&fields, "fields", "f", nil, "plot residuals only for these fields")
	flags.StringVarP(&plotFile, "output", "o", "", "output image file name")
	flags.BoolVar(&forces, "forces", false, "plot force history instead of residuals")
	flags.BoolVar(&forceCoeffs, "force-coeffs", false, "plot force coefficient history")
	flags.StringVar(&funcObject, "func-object", "", "function object name in controlDict")
	return cmd
}

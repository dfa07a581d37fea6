package main

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/pkg/run"
)

func newCleanCmd(app *appContext) *cobra.Command {
	var (
		caseDir   string
		cleanMesh bool
		cleanZero bool
		preserve  []string
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "clean a case directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				confirmed := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Remove generated output from %s?", caseDir),
				}
				if err := survey.AskOne(prompt, &confirmed); err != nil {
					return err
				}
				if !confirmed {
					app.logger.Info("Clean cancelled")
					return nil
				}
			}
			return run.Clean(caseDir, run.CleanOpts{
				PreserveZero:  !cleanZero,
				PurgeMesh:     cleanMesh,
				PreserveExtra: preserve,
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&caseDir, "case-dir", "d", ".", "path to the case directory")
	flags.BoolVarP(&cleanMesh, "clean-mesh", "m", false, "remove polyMesh directory")
	flags.BoolVarP(&cleanZero, "clean-zero", "z", false, "remove 0 directory")
	flags.StringArrayVarP(&preserve, "preserve", "p", nil,
		"shell wildcard patterns of extra files to preserve")
	flags.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/caelus-cml/caelus/pkg/run"
)

func newCloneCmd(app *appContext) *cobra.Command {
	opts := run.CloneOpts{}
	cmd := &cobra.Command{
		Use:   "clone template_dir case_name",
		Short: "clone a case directory",
		Long:  "Clone a case directory into a new folder.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run.Clone(args[0], args[1], opts)
			return err
		},
	}
	flags := cmd.Flags()
	flags.BoolVarP(&opts.SkipMesh, "skip-mesh", "m", false,
		"skip mesh directory while cloning")
	flags.BoolVarP(&opts.SkipZero, "skip-zero", "z", false,
		"skip 0 directory while cloning")
	flags.BoolVarP(&opts.SkipScripts, "skip-scripts", "s", false,
		"skip scripts while cloning")
	flags.StringArrayVarP(&opts.ExtraPatterns, "extra-patterns", "e", nil,
		"shell wildcard patterns matching additional files to ignore")
	flags.StringVarP(&opts.BaseDir, "base-dir", "d", "",
		"directory where the new case directory is created")
	return cmd
}

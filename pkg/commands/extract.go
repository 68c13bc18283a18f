package commands

import (
	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
)

var extractOpts = &fct.ExtractOptions{}

var ExtractCmd = &cobra.Command{
	Use:   "extract <archive> [entry numbers...]",
	Short: "Extract entries from an archive, all of them when no numbers are given",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	ExtractCmd.Flags().StringVarP(&extractOpts.OutputPath, "output", "o", ".", "Output directory")
}

func runExtract(cmd *cobra.Command, args []string) error {
	indices, err := parseIndices(args[1:])
	if err != nil {
		return err
	}

	extractOpts.ArchivePath = args[0]
	extractOpts.Indices = indices
	result, err := fct.ExtractArchive(*extractOpts)
	if err != nil {
		return err
	}
	return result.Err()
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
)

var appendOpts = &fct.AppendOptions{}

var AppendCmd = &cobra.Command{
	Use:   "append <archive> <paths...>",
	Short: "Append files and directories to an existing archive",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAppend,
}

func init() {
	AppendCmd.Flags().StringVarP(&appendOpts.RootDir, "root", "r", "", "Directory stored paths are relative to (default: working directory)")
}

func runAppend(cmd *cobra.Command, args []string) error {
	appendOpts.ArchivePath = args[0]
	appendOpts.InputPaths = args[1:]
	result, err := fct.AppendToArchive(*appendOpts)
	if err != nil {
		return err
	}
	return result.Err()
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
)

var RemoveCmd = &cobra.Command{
	Use:     "remove <archive> <entry numbers...>",
	Aliases: []string{"rm"},
	Short:   "Remove entries from an archive by rewriting it",
	Args:    cobra.MinimumNArgs(2),
	RunE:    runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	indices, err := parseIndices(args[1:])
	if err != nil {
		return err
	}
	return fct.RemoveFromArchive(fct.RemoveOptions{ArchivePath: args[0], Indices: indices})
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
)

var ListCmd = &cobra.Command{
	Use:     "list <archive>",
	Aliases: []string{"ls"},
	Short:   "List the entries of an archive",
	Args:    cobra.ExactArgs(1),
	RunE:    runList,
}

func runList(cmd *cobra.Command, args []string) error {
	entries, err := fct.ListArchive(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No files in archive")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%d: %s %d\n", e.Ordinal, e.Path, e.Length)
	}
	return nil
}

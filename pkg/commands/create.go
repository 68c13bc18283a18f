package commands

import (
	"github.com/spf13/cobra"

	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/fct"
)

var createOpts = &fct.CreateOptions{}

var CreateCmd = &cobra.Command{
	Use:   "create [paths...]",
	Short: "Create an archive from the specified files and directories",
	RunE:  runCreate,
}

func init() {
	CreateCmd.Flags().StringVarP(&createOpts.ArchivePath, "output", "o", "", "Output file for the archive")
	CreateCmd.Flags().IntVarP(&createOpts.ChunkSize, "chunk-size", "c", getEnvInt("FCT_CHUNK_SIZE", common.DefaultChunkSize), "Chunk size in bytes (1-65535)")
	CreateCmd.Flags().StringVarP(&createOpts.RootDir, "root", "r", "", "Directory stored paths are relative to (default: working directory)")
	CreateCmd.MarkFlagRequired("output")
}

func runCreate(cmd *cobra.Command, args []string) error {
	createOpts.InputPaths = args
	result, err := fct.CreateArchive(*createOpts)
	if err != nil {
		return err
	}
	return result.Err()
}

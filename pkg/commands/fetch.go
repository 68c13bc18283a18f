package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
	"github.com/beam-cloud/fct/pkg/storage"
)

var FetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a stored archive",
}

var FetchS3Cmd = &cobra.Command{
	Use:   "s3 <s3://bucket/key> <destination>",
	Short: "Download an archive from s3",
	Args:  cobra.ExactArgs(2),
	RunE:  runFetchS3,
}

var FetchLocalCmd = &cobra.Command{
	Use:   "local <stored archive> <destination>",
	Short: "Copy an archive out of a shared directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runFetchLocal,
}

var fetchS3Opts = &s3FlagOptions{}

func init() {
	FetchCmd.AddCommand(FetchS3Cmd)
	FetchCmd.AddCommand(FetchLocalCmd)

	bindS3Flags(FetchS3Cmd, fetchS3Opts)
}

func runFetchS3(cmd *cobra.Command, args []string) error {
	opts, err := s3StorageOpts(args[0], fetchS3Opts)
	if err != nil {
		return err
	}
	return fct.FetchArchive(cmd.Context(), fct.FetchOptions{DestPath: args[1], Storage: opts})
}

func runFetchLocal(cmd *cobra.Command, args []string) error {
	opts := storage.ArchiveStorageOpts{
		Mode: storage.StorageModeLocal,
		Local: storage.LocalArchiveStorageOpts{
			Dir:  filepath.Dir(args[0]),
			Name: filepath.Base(args[0]),
		},
	}
	return fct.FetchArchive(cmd.Context(), fct.FetchOptions{DestPath: args[1], Storage: opts})
}

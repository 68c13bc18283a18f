package commands

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/fct"
	"github.com/beam-cloud/fct/pkg/storage"
)

var StoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Copy an archive into remote or shared storage",
}

var StoreS3Cmd = &cobra.Command{
	Use:   "s3 <archive> <s3://bucket/key>",
	Short: "Upload an archive to s3",
	Args:  cobra.ExactArgs(2),
	RunE:  runStoreS3,
}

var StoreLocalCmd = &cobra.Command{
	Use:   "local <archive> <directory>",
	Short: "Copy an archive into a shared directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runStoreLocal,
}

var (
	storeS3Opts = &s3FlagOptions{}
	storeName   string
)

func init() {
	StoreCmd.AddCommand(StoreS3Cmd)
	StoreCmd.AddCommand(StoreLocalCmd)

	bindS3Flags(StoreS3Cmd, storeS3Opts)
	StoreLocalCmd.Flags().StringVarP(&storeName, "name", "n", "", "Stored file name (default: base name of the archive)")
}

func runStoreS3(cmd *cobra.Command, args []string) error {
	opts, err := s3StorageOpts(args[1], storeS3Opts)
	if err != nil {
		return err
	}
	return storeWithProgress(cmd, args[0], opts)
}

func runStoreLocal(cmd *cobra.Command, args []string) error {
	name := storeName
	if name == "" {
		name = filepath.Base(args[0])
	}

	opts := storage.ArchiveStorageOpts{
		Mode:  storage.StorageModeLocal,
		Local: storage.LocalArchiveStorageOpts{Dir: args[1], Name: name},
	}
	return storeWithProgress(cmd, args[0], opts)
}

func storeWithProgress(cmd *cobra.Command, archivePath string, opts storage.ArchiveStorageOpts) error {
	progressChan := make(chan int)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for progress := range progressChan {
			log.Info().Msgf("upload progress: %d%%", progress)
		}
	}()

	err := fct.StoreArchive(cmd.Context(), fct.StoreOptions{
		ArchivePath:  archivePath,
		Storage:      opts,
		ProgressChan: progressChan,
	})
	close(progressChan)
	<-done
	if err != nil {
		return err
	}

	log.Info().Msg("done")
	return nil
}

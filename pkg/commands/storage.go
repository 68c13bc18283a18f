package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/fct/pkg/storage"
)

type s3FlagOptions struct {
	Region    string
	Endpoint  string
	PathStyle bool
	DualStack bool
}

func bindS3Flags(cmd *cobra.Command, opts *s3FlagOptions) {
	cmd.Flags().StringVar(&opts.Region, "region", os.Getenv("AWS_REGION"), "S3 region")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", os.Getenv("FCT_S3_ENDPOINT"), "Custom S3 endpoint URL")
	cmd.Flags().BoolVar(&opts.PathStyle, "path-style", false, "Use path-style bucket addressing")
	cmd.Flags().BoolVar(&opts.DualStack, "dual-stack", false, "Prefer IPv6 when the host has a route")
}

// s3StorageOpts builds storage options for an s3://bucket/key URI. Credentials
// come from the default AWS chain unless AWS_ACCESS_KEY_ID is set.
func s3StorageOpts(uri string, opts *s3FlagOptions) (storage.ArchiveStorageOpts, error) {
	bucket, key, err := storage.ParseS3URI(uri)
	if err != nil {
		return storage.ArchiveStorageOpts{}, err
	}

	return storage.ArchiveStorageOpts{
		Mode: storage.StorageModeS3,
		S3: storage.S3ArchiveStorageOpts{
			Bucket:         bucket,
			Key:            key,
			Region:         opts.Region,
			Endpoint:       opts.Endpoint,
			AccessKey:      os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:      os.Getenv("AWS_SECRET_ACCESS_KEY"),
			ForcePathStyle: opts.PathStyle,
			DualStack:      opts.DualStack,
		},
	}, nil
}

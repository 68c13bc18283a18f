package storage

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/fct/pkg/metrics"
)

const lockRetryDelay = 250 * time.Millisecond

type S3ArchiveStorage struct {
	svc    *s3.Client
	bucket string
	key    string
}

type S3ArchiveStorageOpts struct {
	Bucket         string
	Key            string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	DualStack      bool
}

func NewS3ArchiveStorage(ctx context.Context, opts S3ArchiveStorageOpts) (*S3ArchiveStorage, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return nil, fmt.Errorf("s3 storage needs a bucket and a key")
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if opts.AccessKey != "" && opts.SecretKey != "" {
		accessKey = opts.AccessKey
		secretKey = opts.SecretKey
	}

	cfg, err := getAWSConfig(ctx, accessKey, secretKey, opts.Region, opts.DualStack)
	if err != nil {
		return nil, err
	}

	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	// Check to see if we have access to the bucket
	_, err = svc.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(opts.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot access bucket <%s>: %w", opts.Bucket, err)
	}

	return &S3ArchiveStorage{
		svc:    svc,
		bucket: opts.Bucket,
		key:    opts.Key,
	}, nil
}

func getAWSConfig(ctx context.Context, accessKey string, secretKey string, region string, dualStack bool) (aws.Config, error) {
	useDualStack := aws.DualStackEndpointStateDisabled
	httpClient := &http.Client{}

	if dualStack && isIPv6Available(ctx) {
		useDualStack = aws.DualStackEndpointStateEnabled
		httpClient.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialContextIPv6,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithUseDualStackEndpoint(useDualStack),
		config.WithHTTPClient(httpClient),
	}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// isIPv6Available reports whether an outbound IPv6 connection can be opened.
func isIPv6Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := dialContextIPv6(ctx, "tcp", "s3.dualstack.us-east-1.amazonaws.com:443")
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func dialContextIPv6(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp6", address)
}

func (s3c *S3ArchiveStorage) Mode() StorageMode {
	return StorageModeS3
}

type progressReader struct {
	file     *os.File
	size     int64
	read     int64
	reported int
	ch       chan<- int
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.file.Read(p)
	if n > 0 {
		pr.read += int64(n)
		progress := int(float64(pr.read) / float64(pr.size) * 100)

		if pr.ch != nil && progress != pr.reported {
			pr.reported = progress
			pr.ch <- progress
		}
	}
	return n, err
}

func (s3c *S3ArchiveStorage) Upload(ctx context.Context, archivePath string, progressChan chan<- int) error {
	if err := validateArchive(archivePath); err != nil {
		return err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive <%s>: %w", archivePath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	length := fi.Size()

	pr := &progressReader{
		file: f,
		size: length,
		ch:   progressChan,
	}

	uploader := manager.NewUploader(s3c.svc, func(u *manager.Uploader) {
		u.Concurrency = 16
	})

	start := time.Now()
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s3c.bucket),
		Key:           aws.String(s3c.key),
		Body:          pr,
		ContentLength: aws.Int64(length),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	log.Info().Msgf("uploaded %s to s3://%s/%s", archivePath, s3c.bucket, s3c.key)
	metrics.RecordTransfer("upload", length, time.Since(start))
	return nil
}

// Download fetches the archive into destPath. Concurrent downloads to the same
// path are serialised by a lock file next to it.
func (s3c *S3ArchiveStorage) Download(ctx context.Context, destPath string) error {
	unlock, err := lockPath(ctx, destPath)
	if err != nil {
		return err
	}
	defer unlock()

	log.Info().Msgf("downloading s3://%s/%s to %s", s3c.bucket, s3c.key, destPath)
	start := time.Now()

	downloader := manager.NewDownloader(s3c.svc, func(d *manager.Downloader) {
		d.Concurrency = 8
	})

	n, err := writeValidated(destPath, func(f *os.File) (int64, error) {
		return downloader.Download(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(s3c.bucket),
			Key:    aws.String(s3c.key),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to download archive: %w", err)
	}

	log.Info().Msgf("archive <%v> downloaded in %v", destPath, time.Since(start))
	metrics.RecordTransfer("download", n, time.Since(start))
	return nil
}

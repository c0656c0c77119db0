package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"compsynth/internal/config"
	"compsynth/internal/synth"
)

// versionMetaKey is the S3 user metadata key carrying a metadata item's version.
const versionMetaKey = "version"

// s3Client is the subset of *s3.Client the archive needs.
type s3Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archive publishes datasets to an S3 bucket (or an S3-compatible store):
//
//	s3://<bucket>/<prefix>/datasets/<name>
//	s3://<bucket>/<prefix>/metadata/<name>   (version in user metadata)
type S3Archive struct {
	name     string
	bucket   string
	prefix   string
	client   s3Client
	uploader *manager.Uploader
}

// NewS3Archive builds an S3 archive from configuration. Credentials come from
// the config when both keys are set and from the default AWS chain otherwise.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return newS3Archive(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

func newS3Archive(name, bucket, prefix string, client s3Client) *S3Archive {
	return &S3Archive{
		name:     name,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (a *S3Archive) key(parts ...string) string {
	return path.Join(append([]string{a.prefix}, parts...)...)
}

func (a *S3Archive) PutDataset(name string, r io.Reader, size int64) error {
	return a.put(a.key(synth.DatasetKey(name)), r, size, nil)
}

func (a *S3Archive) GetDataset(name string, w io.Writer) error {
	out, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(synth.DatasetKey(name))),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset not found: %s", name)
		}
		return fmt.Errorf("fetching dataset %s: %w", name, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading dataset %s: %w", name, err)
	}
	return nil
}

func (a *S3Archive) PutMetadata(name string, r io.Reader, size int64, version int64) error {
	meta := map[string]string{versionMetaKey: strconv.FormatInt(version, 10)}
	return a.put(a.key("metadata", name), r, size, meta)
}

// GetMetadataVersion reads the version from the object's user metadata.
// Returns 0 when the object does not exist.
func (a *S3Archive) GetMetadataVersion(name string) (int64, error) {
	out, err := a.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key("metadata", name)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading metadata %s: %w", name, err)
	}

	raw, ok := out.Metadata[versionMetaKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and the credentials can reach it.
func (a *S3Archive) ValidateSetup() error {
	if _, err := a.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

// put uploads r under key. The uploader switches to multipart for large bodies.
// The body is checked against size while it streams, so a mismatch aborts the
// upload before the object is committed.
func (a *S3Archive) put(key string, r io.Reader, size int64, meta map[string]string) error {
	_, err := a.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		Body:     &sizedReader{r: r, size: size},
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// sizedReader fails the read that proves the body is not exactly size bytes.
type sizedReader struct {
	r    io.Reader
	size int64
	n    int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	if s.n > s.size {
		return n, fmt.Errorf("size mismatch: expected %d bytes, got more", s.size)
	}
	if err == io.EOF && s.n != s.size {
		return n, fmt.Errorf("size mismatch: expected %d bytes, got %d", s.size, s.n)
	}
	return n, err
}

var _ synth.Archive = (*S3Archive)(nil)

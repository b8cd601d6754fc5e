package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/opencontainers/go-digest"

	"vsxreg/internal/config"
	"vsxreg/internal/errs"
	"vsxreg/internal/model"
	"vsxreg/internal/registry"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Uploader streams objects into S3, switching to multipart uploads for large bodies.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Presigner produces time-limited download URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores blobs as objects in one bucket under an optional prefix.
// Downloads are redirected to presigned URLs.
type S3Store struct {
	client    S3API
	uploader  Uploader
	presigner Presigner
	bucket    string
	prefix    string
	expiry    time.Duration
}

var _ registry.BlobStore = (*S3Store)(nil)

// NewS3Store creates a store from already-constructed clients.
func NewS3Store(client S3API, uploader Uploader, presigner Presigner, bucket, prefix string, expiry time.Duration) *S3Store {
	return &S3Store{
		client:    client,
		uploader:  uploader,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		expiry:    expiry,
	}
}

// NewS3StoreFromConfig loads AWS configuration and builds the S3 clients.
// Static credentials are used when both credential env vars are set;
// otherwise the default AWS credential chain applies.
func NewS3StoreFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyEnv != "" && cfg.S3SecretKeyEnv != "" {
		accessKey, secretKey := os.Getenv(cfg.S3AccessKeyEnv), os.Getenv(cfg.S3SecretKeyEnv)
		if accessKey == "" || secretKey == "" {
			return nil, fmt.Errorf("s3 credentials not set in %s / %s", cfg.S3AccessKeyEnv, cfg.S3SecretKeyEnv)
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})

	expiry := time.Duration(cfg.PresignExpirySeconds) * time.Second
	return NewS3Store(client, manager.NewUploader(client), s3.NewPresignClient(client),
		cfg.S3Bucket, cfg.S3Prefix, expiry), nil
}

func (s *S3Store) Type() string { return model.StorageS3 }

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// digestReader hashes and counts bytes as the uploader consumes them.
type digestReader struct {
	r        io.Reader
	digester digest.Digester
	n        int64
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.digester.Hash().Write(p[:n])
		d.n += int64(n)
	}
	return n, err
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (digest.Digest, int64, error) {
	body := &digestReader{r: r, digester: digest.Canonical.Digester()}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   body,
	})
	if err != nil {
		return "", 0, errs.Unavailable(fmt.Errorf("uploading %s: %w", key, err))
	}
	return body.digester.Digest(), body.n, nil
}

func (s *S3Store) Get(ctx context.Context, key string, w io.Writer, expected digest.Digest) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return errs.NotFoundf("blob not found: %s", key)
		}
		return errs.Unavailable(fmt.Errorf("fetching %s: %w", key, err))
	}
	defer out.Body.Close()

	return copyVerified(w, out.Body, key, expected)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return errs.Unavailable(fmt.Errorf("deleting %s: %w", key, err))
	}
	return nil
}

// Location returns a presigned GET URL valid for the configured expiry.
func (s *S3Store) Location(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (s *S3Store) ValidateSetup(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return errs.Unavailable(fmt.Errorf("bucket %s not accessible: %w", s.bucket, err))
	}
	return nil
}

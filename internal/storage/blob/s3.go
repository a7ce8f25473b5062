package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/twinisland/filebay/internal/infra/tlsroots"
)

// S3Config configures an S3-compatible backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool

	// CAFile adds a PEM CA bundle to the trusted roots for the endpoint.
	CAFile string

	// SpoolDir holds staging blobs until Commit uploads them.
	SpoolDir string
}

// S3 stores committed blobs as objects in a bucket and stages uploads on
// local disk, since objects cannot be appended to.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	region string
	spool  *Local
}

// NewS3 creates a minio client and the local spool directory.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("blob: s3 endpoint and bucket are required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.CAFile != "" {
		tlsConfig, err := tlsroots.ClientConfig(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("blob: %w", err)
		}
		transport, err := minio.DefaultTransport(cfg.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("blob: init transport: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		opts.Transport = transport
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("blob: init minio: %w", err)
	}

	spool, err := NewLocal(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		region: cfg.Region,
		spool:  spool,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *S3) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blob: check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("blob: make bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3) object(id uint64) string {
	return s.prefix + Key(id)
}

// Append implements Backend.
func (s *S3) Append(ctx context.Context, id uint64, offset int64, r io.Reader) (int64, error) {
	return s.spool.Append(ctx, id, offset, r)
}

// Commit implements Backend.
func (s *S3) Commit(ctx context.Context, id uint64) error {
	if err := s.spool.Commit(ctx, id); err != nil {
		return err
	}
	defer s.spool.Remove(ctx, id)

	f, size, err := s.spool.Open(ctx, id)
	if err != nil {
		return err
	}
	defer f.Close()

	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if _, err := s.client.PutObject(ctx, s.bucket, s.object(id), f, size, opts); err != nil {
		return fmt.Errorf("blob: put object %d: %w", id, err)
	}
	return nil
}

// Open implements Backend.
func (s *S3) Open(ctx context.Context, id uint64) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, s.mapErr(id, err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, s.mapErr(id, err)
	}
	return obj, st.Size, nil
}

// Remove implements Backend.
func (s *S3) Remove(ctx context.Context, id uint64) error {
	spoolErr := s.spool.Remove(ctx, id)
	if err := s.client.RemoveObject(ctx, s.bucket, s.object(id), minio.RemoveObjectOptions{}); err != nil {
		if !isNoSuchKey(err) {
			return fmt.Errorf("blob: remove object %d: %w", id, err)
		}
	}
	return spoolErr
}

// Rename implements Backend.
func (s *S3) Rename(ctx context.Context, from, to uint64) error {
	if from == to {
		return nil
	}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: s.object(from)}
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: s.object(to)}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return s.mapErr(from, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.object(from), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("blob: remove object %d after copy: %w", from, err)
	}
	return nil
}

// List implements Backend.
func (s *S3) List(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("blob: list objects: %w", obj.Err)
		}
		if id, ok := ParseKey(strings.TrimPrefix(obj.Key, s.prefix)); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Purge implements Backend.
func (s *S3) Purge(ctx context.Context) error {
	return s.spool.Purge(ctx)
}

func (s *S3) mapErr(id uint64, err error) error {
	if isNoSuchKey(err) {
		return ErrNotFound
	}
	return fmt.Errorf("blob: object %d: %w", id, err)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

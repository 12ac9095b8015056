package imaging

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures access to an S3-compatible object store.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Getter reads objects with minio-go using virtual-host bucket addressing.
type S3Getter struct {
	client *minio.Client
}

// NewS3Getter connects to the object store described by opts. Empty keys
// fall back to anonymous access.
func NewS3Getter(opts S3Options) (*S3Getter, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupDNS,
	})
	if err != nil {
		return nil, err
	}
	return &S3Getter{client: client}, nil
}

// GetObject implements ObjectGetter.
func (g *S3Getter) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := g.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces missing objects and auth errors now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

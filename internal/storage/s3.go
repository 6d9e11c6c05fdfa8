package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3KeySource reads a PEM private key from an S3 compatible object store.
type S3KeySource struct {
	client *minio.Client
	bucket string
	key    string
}

func NewS3KeySource(endpoint, accessKey, secretKey, bucket, key string, useSSL bool) (*S3KeySource, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &S3KeySource{
		client: client,
		bucket: bucket,
		key:    key,
	}, nil
}

func (s *S3KeySource) LoadSigningKey(ctx context.Context) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get signing key from S3: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("signing key %s/%s not found: %w", s.bucket, s.key, err)
		}
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	return data, nil
}

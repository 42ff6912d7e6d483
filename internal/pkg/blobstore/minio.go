package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vocalingo/core/internal/config"
)

type minioStore struct {
	client *minio.Client
	bucket string
}

func newMinioStore(cfg config.StorageConfig) (*minioStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("incomplete minio config: endpoint/access_key/secret_key are required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return &minioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *minioStore) Download(ctx context.Context, key string) (*Object, error) {
	k, err := validKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio download failed: %w", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, notFound(k)
		}
		return nil, fmt.Errorf("minio stat failed: %w", err)
	}
	data, err := readLimited(obj, k)
	if err != nil {
		return nil, err
	}
	return &Object{Key: k, Data: data, ContentType: contentTypeOf(info.ContentType, data)}, nil
}

func (s *minioStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	k, err := validKey(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio upload failed: %w", err)
	}
	return nil
}

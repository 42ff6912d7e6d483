package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/pkg/apperr"
)

// MaxObjectSize caps downloads; transcription endpoints reject anything larger.
const MaxObjectSize = 25 << 20

// Object is a downloaded blob.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
}

// Store reads and writes audio blobs by file id.
type Store interface {
	Download(ctx context.Context, key string) (*Object, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// New picks the driver named in the storage config.
func New(cfg config.StorageConfig) (Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage.bucket is required")
	}
	switch cfg.Driver {
	case "s3", "":
		return newS3Store(cfg)
	case "minio":
		return newMinioStore(cfg)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

func notFound(key string) error {
	return fmt.Errorf("%w: object %q", apperr.ErrNotFound, key)
}

func readLimited(r io.Reader, key string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("%w: object %q exceeds %d bytes", apperr.ErrValidation, key, MaxObjectSize)
	}
	return data, nil
}

func contentTypeOf(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" && declared != "binary/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}

func validKey(key string) (string, error) {
	k := normalizeObjectKey(key)
	if k == "" || strings.Contains(k, "..") {
		return "", apperr.Invalid("fileId", "invalid object key")
	}
	return k, nil
}

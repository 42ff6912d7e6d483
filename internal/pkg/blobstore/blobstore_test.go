package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/pkg/apperr"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Upload(ctx, "/audio//u1/take.wav", []byte("RIFF....WAVE"), "audio/wav"))

	obj, err := store.Download(ctx, "audio/u1/take.wav")
	require.NoError(t, err)
	assert.Equal(t, "audio/u1/take.wav", obj.Key)
	assert.Equal(t, []byte("RIFF....WAVE"), obj.Data)
	assert.Equal(t, "audio/wav", obj.ContentType)

	_, err = store.Download(ctx, "audio/u1/missing.wav")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = store.Download(ctx, "../etc/passwd")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestContentTypeSniffing(t *testing.T) {
	assert.Equal(t, "audio/mpeg", contentTypeOf("audio/mpeg", nil))
	assert.Equal(t, "audio/wave", contentTypeOf("application/octet-stream", []byte("RIFF\x00\x00\x00\x00WAVEfmt ")))
}

func TestNewSelectsDriver(t *testing.T) {
	_, err := New(config.StorageConfig{Driver: "s3"})
	require.Error(t, err)

	s, err := New(config.StorageConfig{Driver: "s3", Bucket: "audio", Region: "us-east-1", Endpoint: "localhost:9000"})
	require.NoError(t, err)
	assert.IsType(t, &s3Store{}, s)

	_, err = New(config.StorageConfig{Driver: "minio", Bucket: "audio"})
	require.Error(t, err)

	s, err = New(config.StorageConfig{Driver: "minio", Bucket: "audio", Endpoint: "http://localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.IsType(t, &minioStore{}, s)

	_, err = New(config.StorageConfig{Driver: "gcs", Bucket: "audio"})
	require.Error(t, err)
}

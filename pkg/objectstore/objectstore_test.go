package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "mochimo",
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	assert.Error(t, invalid.Validate())

	invalid = valid
	invalid.Bucket = " "
	assert.Error(t, invalid.Validate())
}

func TestObjectURL(t *testing.T) {
	cfg := Config{Endpoint: "minio:9000", Bucket: "mochimo"}
	assert.Equal(t, "http://minio:9000/mochimo/tasks/1/a.png", cfg.ObjectURL("tasks/1/a.png"))

	cfg.UseSSL = true
	assert.Equal(t, "https://minio:9000/mochimo/k", cfg.ObjectURL("k"))

	cfg.PublicBaseURL = "https://cdn.example.com/files"
	assert.Equal(t, "https://cdn.example.com/files/k", cfg.ObjectURL("k"))
}

func TestInspectImage(t *testing.T) {
	img, err := InspectImage(bytes.NewReader(pngHeader), int64(len(pngHeader)), 1024)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, ".png", img.Extension())

	body, err := io.ReadAll(img.Body)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, body, "peeking must not consume the body")

	pdf := []byte("%PDF-1.7\n")
	img, err = InspectImage(bytes.NewReader(pdf), int64(len(pdf)), 1024)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", img.ContentType)

	_, err = InspectImage(strings.NewReader("plain text"), 10, 1024)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = InspectImage(bytes.NewReader(pngHeader), 2048, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = InspectImage(bytes.NewReader(nil), 0, 1024)
	assert.ErrorIs(t, err, ErrEmpty)
}

type fakePutter struct {
	keys []string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, _ string, key string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	_, _ = io.Copy(io.Discard, r)
	f.keys = append(f.keys, key)
	return minio.UploadInfo{Key: key}, nil
}

func TestMinioStoreSave(t *testing.T) {
	putter := &fakePutter{}
	store := newMinioStore(putter, Config{Endpoint: "minio:9000", Bucket: "mochimo"}, zap.NewNop())
	img, err := InspectImage(bytes.NewReader(pngHeader), int64(len(pngHeader)), 0)
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "payments", 7, img)
	require.NoError(t, err)

	require.Len(t, putter.keys, 1)
	assert.True(t, strings.HasPrefix(putter.keys[0], "payments/7/"))
	assert.True(t, strings.HasSuffix(putter.keys[0], ".png"))
	assert.Equal(t, "http://minio:9000/mochimo/"+putter.keys[0], url)
}

func TestMinioStoreSave_OpensCircuitAfterRepeatedFailures(t *testing.T) {
	putter := &fakePutter{err: errors.New("connection refused")}
	store := newMinioStore(putter, Config{Endpoint: "minio:9000", Bucket: "mochimo"}, zap.NewNop())
	img := Image{Body: bytes.NewReader(pngHeader), Size: int64(len(pngHeader)), ContentType: "image/png"}

	for i := 0; i < 5; i++ {
		_, err := store.Save(context.Background(), "tasks", 1, img)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := store.Save(context.Background(), "tasks", 1, img)
	assert.ErrorIs(t, err, ErrUnavailable)
}

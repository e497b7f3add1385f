package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeStore) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	b, _ := io.ReadAll(params.Body)
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestUploaderUpload(t *testing.T) {
	store := &fakeStore{}
	u := NewUploaderWithClient(Config{Bucket: "veo", PublicBaseURL: "https://cdn.example.com/"}, store)
	u.now = func() time.Time { return time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC) }

	url, err := u.Upload(context.Background(), []byte("mp4-bytes"), "video/mp4")
	require.NoError(t, err)

	key := aws.ToString(store.input.Key)
	assert.True(t, strings.HasPrefix(key, "videos/2025/03/07/"), key)
	assert.True(t, strings.HasSuffix(key, ".mp4"), key)
	assert.Equal(t, "https://cdn.example.com/"+key, url)
	assert.Equal(t, "veo", aws.ToString(store.input.Bucket))
	assert.Equal(t, "video/mp4", aws.ToString(store.input.ContentType))
	assert.Equal(t, []byte("mp4-bytes"), store.body)
}

func TestUploaderRejectsEmptyData(t *testing.T) {
	u := NewUploaderWithClient(Config{Bucket: "veo", PublicBaseURL: "https://cdn"}, &fakeStore{})
	_, err := u.Upload(context.Background(), nil, "video/mp4")
	assert.Error(t, err)
}

func TestUploaderWrapsStoreError(t *testing.T) {
	u := NewUploaderWithClient(Config{Bucket: "veo", PublicBaseURL: "https://cdn"}, &fakeStore{err: errors.New("access denied")})
	_, err := u.Upload(context.Background(), []byte("x"), "video/webm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to s3")
}

func TestNewUploaderValidation(t *testing.T) {
	_, err := NewUploader(Config{Region: "us-east-1"})
	assert.Error(t, err)

	_, err = NewUploader(Config{Bucket: "b", Region: "us-east-1", AccessKey: "a", SecretKey: "s"})
	assert.Error(t, err)

	u, err := NewUploader(Config{Bucket: "b", Region: "us-east-1", AccessKey: "a", SecretKey: "s", PublicBaseURL: "https://cdn"})
	require.NoError(t, err)
	assert.Equal(t, "videos", u.cfg.Prefix)
}

func TestExtensionFromContentType(t *testing.T) {
	cases := map[string]string{
		"video/mp4":                ".mp4",
		"VIDEO/WEBM":               ".webm",
		"video/mp4; codecs=avc1":   ".mp4",
		"video/quicktime":          ".mov",
		"application/octet-stream": ".bin",
	}
	for in, want := range cases {
		assert.Equal(t, want, extensionFromContentType(in), in)
	}
}

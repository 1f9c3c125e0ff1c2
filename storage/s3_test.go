package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory and answers like S3 does for missing keys.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func notFound(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "not found"}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, notFound("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, notFound("NotFound")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, notFound("NoSuchKey")
	}
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (p *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".s3.local/" + *in.Key + "?sig=1"}, nil
}

func TestNewS3Storage_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := NewS3Storage(ctx, S3Options{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = NewS3Storage(ctx, S3Options{Bucket: "artifacts"})
	assert.Error(t, err)
}

func TestS3Storage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	presigner := &fakePresigner{}
	s := newS3Storage(client, presigner, "artifacts", 0)

	require.NoError(t, s.Upload(ctx, "runs/run_1/./trace.zip", strings.NewReader("trace")))
	assert.Contains(t, client.objects, "runs/run_1/trace.zip")

	ok, err := s.Exists(ctx, "runs/run_1/trace.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Download(ctx, "runs/run_1/trace.zip")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "trace", string(data))

	url, err := s.URL(ctx, "runs/run_1/trace.zip")
	require.NoError(t, err)
	assert.Equal(t, "https://artifacts.s3.local/runs/run_1/trace.zip?sig=1", url)
	assert.Equal(t, 15*time.Minute, presigner.expires)

	require.NoError(t, s.Delete(ctx, "runs/run_1/trace.zip"))
	ok, err = s.Exists(ctx, "runs/run_1/trace.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Storage_Errors(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	s := newS3Storage(client, &fakePresigner{}, "artifacts", time.Minute)

	_, err := s.Download(ctx, "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrFileNotFound)
	_, err = s.URL(ctx, "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)

	assert.ErrorIs(t, s.Upload(ctx, "../escape", strings.NewReader("x")), ErrInvalidPath)

	client.putErr = errors.New("throttled")
	err = s.Upload(ctx, "ok.txt", strings.NewReader("x"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrFileNotFound)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(notFound("NoSuchKey")))
	assert.True(t, isNotFound(notFound("NotFound")))
	assert.False(t, isNotFound(notFound("AccessDenied")))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.False(t, isNotFound(nil))
}

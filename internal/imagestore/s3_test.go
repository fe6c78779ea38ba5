package imagestore

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestStore(client PutObjectAPI, baseURL string) *S3Store {
	s := NewS3Store(client, "meal-photos", "/meals/", baseURL)
	s.newID = func() string { return "0000-fixed" }
	return s
}

func TestPutUploadsAndReturnsCDNURL(t *testing.T) {
	fake := &fakeS3{}
	store := newTestStore(fake, "https://cdn.example.com/")

	url, err := store.Put(context.Background(), "user-1", "Lunch.JPG", "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/meals/user-1/0000-fixed.jpg", url)
	assert.Equal(t, "meal-photos", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "meals/user-1/0000-fixed.jpg", aws.ToString(fake.input.Key))
	assert.Equal(t, "image/jpeg", aws.ToString(fake.input.ContentType))
	assert.Equal(t, []byte("jpeg-bytes"), fake.body)
}

func TestPutWithoutCDNUsesBucketURL(t *testing.T) {
	store := newTestStore(&fakeS3{}, "")

	url, err := store.Put(context.Background(), "anonymous/../x", "", "image/png", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://meal-photos.s3.amazonaws.com/meals/anonymous%2F..%2Fx/0000-fixed.png", url)
}

func TestPutPropagatesErrors(t *testing.T) {
	store := newTestStore(&fakeS3{err: assert.AnError}, "")

	_, err := store.Put(context.Background(), "user-1", "a.jpg", "image/jpeg", nil)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".heic", extension("IMG_1.HEIC", "image/heic"))
	assert.Equal(t, ".jpg", extension("", "image/jpeg"))
	assert.Equal(t, ".png", extension("", "image/png"))
	assert.Equal(t, ".x-custom", extension("", "image/x-custom"))
	assert.Equal(t, "", extension("", ""))
}

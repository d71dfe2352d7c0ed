package report

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubereach/kubereach/internal/util/retry"
)

type fakeS3 struct {
	createErr error
	putErrs   []error
	putCalls  int
	putInput  *s3.PutObjectInput
}

func (f *fakeS3) CreateBucket(_ context.Context, _ *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCalls++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.putInput = params
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	fake := &fakeS3{}
	u := NewUploaderForClient(fake, "reports", "kubereach")

	now := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)
	key, err := u.Upload(context.Background(), "matrix", "json", []byte(`{"ok":true}`), now)
	require.NoError(t, err)

	assert.Equal(t, "kubereach/matrix-20260829-123000.json", key)
	require.NotNil(t, fake.putInput)
	assert.Equal(t, "reports", *fake.putInput.Bucket)
	assert.Equal(t, "application/json", *fake.putInput.ContentType)

	body, err := io.ReadAll(fake.putInput.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestUpload_RetriesTransientError(t *testing.T) {
	fake := &fakeS3{putErrs: []error{errors.New("connection reset")}}
	u := NewUploaderForClient(fake, "reports", "kubereach")
	u.retryOpts = []retry.Option{retry.WithInitialDelay(time.Millisecond)}

	now := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)
	key, err := u.Upload(context.Background(), "matrix", "json", []byte(`{"ok":true}`), now)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.putCalls)
	assert.Equal(t, "kubereach/matrix-20260829-123000.json", key)
	require.NotNil(t, fake.putInput)

	body, err := io.ReadAll(fake.putInput.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestEnsureBucket_AlreadyOwned(t *testing.T) {
	fake := &fakeS3{createErr: &types.BucketAlreadyOwnedByYou{}}
	u := NewUploaderForClient(fake, "reports", "")

	assert.NoError(t, u.EnsureBucket(context.Background()))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "json", extensionFor("json"))
	assert.Equal(t, "csv", extensionFor("csv"))
	assert.Equal(t, "txt", extensionFor("table"))
}

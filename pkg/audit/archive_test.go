package audit

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiver_Archive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, sampleRecord("org-1", "u1", DecisionAllowed, 0)))
	require.NoError(t, store.Record(ctx, sampleRecord("org-1", "u1", DecisionDenied, time.Minute)))
	require.NoError(t, store.Record(ctx, sampleRecord("org-1", "u1", DecisionAllowed, 2*time.Hour)))

	putter := &fakePutter{}
	archiver := NewArchiver(store, putter, "audit-bucket", "archive", observability.NopLogger())

	key, n, err := archiver.Archive(ctx, "org-1", baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "archive/org-1/20260301T120000Z_20260301T130000Z.ndjson", key)

	body := putter.objects["audit-bucket/"+key]
	assert.Len(t, strings.Split(strings.TrimSpace(body), "\n"), 2)
}

func TestArchiver_EmptyRangeSkipsUpload(t *testing.T) {
	putter := &fakePutter{}
	archiver := NewArchiver(NewMemoryStore(), putter, "b", "", nil)

	key, n, err := archiver.Archive(context.Background(), "org-1", baseTime, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Zero(t, n)
	assert.Empty(t, putter.objects)
}

func TestArchiver_UploadError(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Record(context.Background(), sampleRecord("org-1", "u1", DecisionAllowed, 0)))

	archiver := NewArchiver(store, &fakePutter{err: errors.New("access denied")}, "b", "", observability.NopLogger())
	_, _, err := archiver.Archive(context.Background(), "org-1", baseTime, baseTime.Add(time.Hour))
	assert.ErrorContains(t, err, "failed to upload audit archive")
}

func TestArchiver_Schedule(t *testing.T) {
	archiver := NewArchiver(NewMemoryStore(), &fakePutter{}, "b", "", observability.NopLogger())
	c := cron.New()

	id, err := archiver.Schedule(c, "@hourly", time.Hour, func() []string { return []string{"org-1"} })
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = archiver.Schedule(c, "not a schedule", time.Hour, func() []string { return nil })
	assert.Error(t, err)
}

func TestArchiver_RunOnceContinuesPastErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, sampleRecord("org-1", "u1", DecisionAllowed, 0)))
	require.NoError(t, store.Record(ctx, sampleRecord("org-2", "u2", DecisionAllowed, 0)))

	putter := &fakePutter{}
	archiver := NewArchiver(store, putter, "b", "p", observability.NopLogger())
	archiver.runOnce(ctx, []string{"", "org-1", "org-2"}, baseTime, baseTime.Add(time.Hour))

	assert.Len(t, putter.objects, 2)
}

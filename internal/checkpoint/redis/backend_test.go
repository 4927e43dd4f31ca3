package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
)

type fakeClient struct {
	data   map[string][]byte
	ttl    map[string]time.Duration
	err    error
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(v), nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	data, ok := value.([]byte)
	if !ok {
		return goredis.NewStatusResult("", errors.New("unexpected value type"))
	}
	f.data[key] = append([]byte(nil), data...)
	f.ttl[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestBackendRoundTrip(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	b, err := NewWithClient(client, "localhost:6379", "")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Read(ctx)
	require.ErrorIs(t, err, checkpoint.ErrNotFound)

	require.NoError(t, b.Write(ctx, []byte(`{"lastPage": 7}`)))
	assert.Zero(t, client.ttl[DefaultKey], "checkpoint must never expire")

	data, err := b.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastPage": 7}`, string(data))

	require.NoError(t, b.Delete(ctx))
	_, err = b.Read(ctx)
	require.ErrorIs(t, err, checkpoint.ErrNotFound)

	require.NoError(t, b.Close())
	assert.True(t, client.closed)
	assert.Equal(t, "redis://localhost:6379/scraper:checkpoint", b.Location())
}

func TestBackendErrors(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.err = errors.New("connection refused")
	b, err := NewWithClient(client, "localhost:6379", "custom")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Read(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, checkpoint.ErrNotFound)
	require.Error(t, b.Write(ctx, []byte("{}")))
	require.Error(t, b.Delete(ctx))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	_, err = NewWithClient(nil, "", "")
	require.Error(t, err)
}

package checkpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
	"github.com/JakeFAU/paginated-scraper/internal/checkpoint/memory"
	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Read(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockBackend) Write(ctx context.Context, data []byte) error {
	return m.Called(ctx, data).Error(0)
}

func (m *mockBackend) Delete(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBackend) Close() error {
	return m.Called().Error(0)
}

func (m *mockBackend) Location() string {
	return "mock"
}

func TestStoreLoadWithoutRecordIsEmpty(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.New(memory.New())
	require.NoError(t, err)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, state.LastCompletedPage)
	assert.Zero(t, state.ProcessedItemURLs.Len())
	assert.Zero(t, state.ProcessedDocumentURLs.Len())
}

func TestStoreSaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	backend := memory.New()
	store, err := checkpoint.New(backend, checkpoint.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 3, []string{"a", "b", "c"}, []string{"d1", "d2"}))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, state.LastCompletedPage)
	assert.Equal(t, []string{"a", "b", "c"}, state.ProcessedItemURLs.Sorted())
	assert.Equal(t, []string{"d1", "d2"}, state.ProcessedDocumentURLs.Sorted())
	assert.True(t, fixed.Equal(state.LastUpdate))
	assert.Equal(t, 1, backend.Writes())
}

func TestStoreSaveReplacesPreviousRecord(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.New(memory.New())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 1, []string{"a"}, nil))
	require.NoError(t, store.Save(ctx, 2, []string{"a", "b"}, []string{"d"}))

	rec, found, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, rec.LastPage)
	assert.Equal(t, []string{"a", "b"}, rec.ProcessedURLs)
}

func TestStoreCorruptRecord(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.New(memory.NewWithRecord([]byte(`{"lastPage": 4, "processedUrls": [`)))
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, crawl.ErrCorruptState)
	assert.NotErrorIs(t, err, crawl.ErrIO)
}

func TestStoreBackendFailuresWrapIO(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk unplugged")
	backend := &mockBackend{}
	backend.On("Read", mock.Anything).Return(nil, boom)
	backend.On("Write", mock.Anything, mock.Anything).Return(boom)
	backend.On("Delete", mock.Anything).Return(boom)
	store, err := checkpoint.New(backend)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, crawl.ErrIO)
	require.ErrorIs(t, err, boom)

	err = store.Save(ctx, 1, []string{"a"}, nil)
	require.ErrorIs(t, err, crawl.ErrIO)

	err = store.Reset(ctx)
	require.ErrorIs(t, err, crawl.ErrIO)
	backend.AssertExpectations(t)
}

func TestStoreSaveWritesEncodedRecord(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	want, err := checkpoint.NewRecord(2, []string{"a"}, []string{"d"}, fixed).Encode()
	require.NoError(t, err)

	backend := &mockBackend{}
	backend.On("Write", mock.Anything, want).Return(nil).Once()
	backend.On("Close").Return(nil).Once()
	store, err := checkpoint.New(backend, checkpoint.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), 2, []string{"a"}, []string{"d"}))
	require.NoError(t, store.Close())
	backend.AssertExpectations(t)
}

func TestStoreRejectsInvalidSave(t *testing.T) {
	t.Parallel()

	backend := memory.New()
	store, err := checkpoint.New(backend)
	require.NoError(t, err)

	err = store.Save(context.Background(), 1, []string{""}, nil)
	require.Error(t, err)
	assert.Zero(t, backend.Writes())
}

func TestStoreReset(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.New(memory.New())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, 5, []string{"a"}, nil))
	require.NoError(t, store.Reset(ctx))
	require.NoError(t, store.Reset(ctx))

	_, found, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRequiresBackend(t *testing.T) {
	t.Parallel()

	_, err := checkpoint.New(nil)
	require.Error(t, err)
}

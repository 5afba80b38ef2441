package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	err := st.Set(ctx, "k1", "v1", time.Minute)
	require.NoError(t, err)

	val, err := st.Get(ctx, "k1")
	assert.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	st := NewMemoryStore()

	_, err := st.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k1", "v1", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, err := st.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_GetDel(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k1", "v1", time.Minute))

	val, err := st.GetDel(ctx, "k1")
	assert.NoError(t, err)
	assert.Equal(t, "v1", val)

	_, err = st.GetDel(ctx, "k1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_GetDelConcurrent(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k1", "v1", time.Minute))

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.GetDel(ctx, "k1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrKeyNotFound)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestMemoryStore_DeleteAbsent(t *testing.T) {
	st := NewMemoryStore()

	assert.NoError(t, st.Delete(context.Background(), "absent"))
}

func TestMemoryStore_Overwrite(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, st.Set(ctx, "k1", "v2", time.Minute))

	val, err := st.Get(ctx, "k1")
	assert.NoError(t, err)
	assert.Equal(t, "v2", val)
}

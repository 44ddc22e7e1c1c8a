package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-service/internal/models"
	"pos-service/internal/store/memory"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "A0007", Format("A", 7))
	assert.Equal(t, "A0001", Format("A", 1))
	assert.Equal(t, "Z9999", Format("Z", 9999))
}

func TestNextSeedsNamespace(t *testing.T) {
	alloc := NewAllocator(memory.New())
	ctx := context.Background()

	barcode, err := alloc.Next(ctx, "barcode")
	require.NoError(t, err)
	assert.Equal(t, "A0001", barcode)
}

func TestNextIncrements(t *testing.T) {
	alloc := NewAllocator(memory.New())
	ctx := context.Background()

	want := []string{"A0001", "A0002", "A0003"}
	for _, expected := range want {
		barcode, err := alloc.Next(ctx, "barcode")
		require.NoError(t, err)
		assert.Equal(t, expected, barcode)
	}
}

func TestNextRollsLetterAt9999(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateSequenceCounter(ctx, models.SequenceCounter{
		Namespace: "barcode", Letter: "A", Counter: 9999,
	}))

	alloc := NewAllocator(repo)
	barcode, err := alloc.Next(ctx, "barcode")
	require.NoError(t, err)
	assert.Equal(t, "B0001", barcode)
}

func TestNextExhaustedPastZ9999(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateSequenceCounter(ctx, models.SequenceCounter{
		Namespace: "barcode", Letter: "Z", Counter: 9999,
	}))

	alloc := NewAllocator(repo)
	_, err := alloc.Next(ctx, "barcode")
	assert.ErrorIs(t, err, ErrExhausted)

	// The counter must not wrap: the next call still fails.
	_, err = alloc.Next(ctx, "barcode")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestNamespacesAreIndependent(t *testing.T) {
	alloc := NewAllocator(memory.New())
	ctx := context.Background()

	first, err := alloc.Next(ctx, "barcode")
	require.NoError(t, err)
	other, err := alloc.Next(ctx, "receipt")
	require.NoError(t, err)

	assert.Equal(t, "A0001", first)
	assert.Equal(t, "A0001", other)
}

func TestConcurrentNextYieldsUniqueBarcodes(t *testing.T) {
	alloc := NewAllocator(memory.New())
	ctx := context.Background()

	const n = 40
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			barcode, err := alloc.Next(ctx, "barcode")
			assert.NoError(t, err)
			results <- barcode
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for barcode := range results {
		assert.False(t, seen[barcode], "duplicate barcode %s", barcode)
		seen[barcode] = true
	}
	assert.Len(t, seen, n)
}

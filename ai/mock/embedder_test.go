package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicVector(t *testing.T) {
	a := DeterministicVector("hello", 64)
	b := DeterministicVector("hello", 64)
	c := DeterministicVector("world", 64)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("default behavior", func(t *testing.T) {
		m := NewMockEmbedder().WithDimensions(8)

		vectors, err := m.EmbedTexts(ctx, []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Len(t, vectors[0], 8)

		single, err := m.EmbedText(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, vectors[0], single)

		assert.Equal(t, 2, m.CallCount())
		assert.Equal(t, [][]string{{"a", "b"}, {"a"}}, m.Batches())
	})

	t.Run("injected failure", func(t *testing.T) {
		m := NewMockEmbedder()
		boom := errors.New("boom")
		m.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
			return nil, boom
		}

		_, err := m.EmbedTexts(ctx, []string{"a"})
		assert.ErrorIs(t, err, boom)

		m.Reset()
		assert.Zero(t, m.CallCount())
		_, err = m.EmbedTexts(ctx, []string{"a"})
		assert.NoError(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewMockEmbedder().EmbedText(cctx, "a")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("concurrent use", func(t *testing.T) {
		m := NewMockEmbedder()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.EmbedText(ctx, "x")
			}()
		}
		wg.Wait()
		assert.Equal(t, 20, m.CallCount())
	})
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	mp := p.(*MockProvider)

	assert.Equal(t, "mock", p.Name())
	assert.Same(t, mp.GetMockEmbedder(), p.Embedder())
	require.NoError(t, p.Close())
	assert.True(t, mp.Closed())
}

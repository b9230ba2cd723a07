package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 可编排失败次数与返回维度的测试替身。
type fakeEmbedder struct {
	dim       int
	calls     int
	failFirst int
	failErr   error
	shortBy   int
	blockCtx  bool
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.calls <= f.failFirst {
		return nil, f.failErr
	}
	n := len(texts) - f.shortBy
	if n < 0 {
		n = 0
	}
	out := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		vec := make([]float64, f.dim)
		for j := range vec {
			vec[j] = float64(i + j)
		}
		out = append(out, vec)
	}
	return out, nil
}

func testOpts() BatchEmbedderOptions {
	return BatchEmbedderOptions{
		Model:             "mxbai-embed-large",
		BatchSize:         2,
		MaxRetries:        2,
		BackoffInitial:    time.Millisecond,
		BackoffMax:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestBatchEmbedder_Batching(t *testing.T) {
	fe := &fakeEmbedder{dim: 4}
	be := NewBatchEmbedder(fe, testOpts())

	vecs, err := be.EmbedTexts(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, 3, fe.calls)
	for _, v := range vecs {
		assert.Len(t, v, 4)
	}
}

func TestBatchEmbedder_RetryThenSuccess(t *testing.T) {
	fe := &fakeEmbedder{dim: 4, failFirst: 2, failErr: errors.New("boom")}
	be := NewBatchEmbedder(fe, testOpts())

	vecs, err := be.EmbedTexts(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, 3, fe.calls)
}

func TestBatchEmbedder_RetriesExhausted(t *testing.T) {
	fe := &fakeEmbedder{dim: 4, failFirst: 10, failErr: errors.New("boom")}
	be := NewBatchEmbedder(fe, testOpts())

	_, err := be.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, 3, fe.calls)
}

func TestBatchEmbedder_CountMismatch(t *testing.T) {
	fe := &fakeEmbedder{dim: 4, shortBy: 1}
	be := NewBatchEmbedder(fe, testOpts())

	_, err := be.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestBatchEmbedder_Timeout(t *testing.T) {
	fe := &fakeEmbedder{dim: 4, blockCtx: true}
	opts := testOpts()
	opts.Timeout = 5 * time.Millisecond
	be := NewBatchEmbedder(fe, opts)

	_, err := be.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestBatchEmbedder_ParentContextCanceled(t *testing.T) {
	fe := &fakeEmbedder{dim: 4, blockCtx: true}
	be := NewBatchEmbedder(fe, testOpts())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond)
		cancel()
	}()
	_, err := be.EmbedTexts(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchEmbedder_EmptyInput(t *testing.T) {
	be := NewBatchEmbedder(&fakeEmbedder{dim: 4}, testOpts())
	vecs, err := be.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestBatchEmbedder_Model(t *testing.T) {
	be := NewBatchEmbedder(&fakeEmbedder{dim: 4}, testOpts())
	assert.Equal(t, "mxbai-embed-large", be.Model())
}

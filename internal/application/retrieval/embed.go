package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
)

const defaultEmbeddingBatch = 32

// BatchEmbedder 在底层 Embedder 之上提供分批、限时与有限重试。
// 重试仅针对瞬时失败；上层 ctx 取消时立即停止。
type BatchEmbedder struct {
	inner embedding.Embedder
	model string

	batchSize  int
	timeout    time.Duration
	maxRetries int

	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMultiplier float64
}

type BatchEmbedderOptions struct {
	Model      string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int

	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
}

func NewBatchEmbedder(inner embedding.Embedder, opts BatchEmbedderOptions) *BatchEmbedder {
	bs := opts.BatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	initial := opts.BackoffInitial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := opts.BackoffMax
	if max <= 0 {
		max = 5 * time.Second
	}
	mult := opts.BackoffMultiplier
	if mult < 1 {
		mult = 2
	}
	return &BatchEmbedder{
		inner:             inner,
		model:             opts.Model,
		batchSize:         bs,
		timeout:           opts.Timeout,
		maxRetries:        opts.MaxRetries,
		backoffInitial:    initial,
		backoffMax:        max,
		backoffMultiplier: mult,
	}
}

// Model 返回底层向量化模型名，用于索引元信息与失效判断。
func (b *BatchEmbedder) Model() string {
	return b.model
}

// EmbedTexts 将文本分批向量化，返回与输入等长的向量表。
func (b *BatchEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if b == nil || b.inner == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := b.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingUnavailable, len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery 单条文本的便捷封装。
func (b *BatchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ErrEmbeddingUnavailable
	}
	return vecs[0], nil
}

func (b *BatchEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	backoff := b.backoffInitial
	var lastErr error

	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrapCtxErr(ctx.Err())
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * b.backoffMultiplier)
			if backoff > b.backoffMax {
				backoff = b.backoffMax
			}
		}

		vecs, err := b.callOnce(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			// 上层取消/超时不再重试
			return nil, wrapCtxErr(ctx.Err())
		}
		lastErr = err
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

func (b *BatchEmbedder) callOnce(ctx context.Context, batch []string) ([][]float32, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	v64, err := b.inner.EmbedStrings(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(v64))
	for _, vec := range v64 {
		f32 := make([]float32, 0, len(vec))
		for _, x := range vec {
			f32 = append(f32, float32(x))
		}
		out = append(out, f32)
	}
	return out, nil
}

func wrapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

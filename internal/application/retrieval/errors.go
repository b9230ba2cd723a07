package retrieval

import "errors"

var (
	// ErrInvalidConfiguration 表示分块/检索参数不合法（如 overlap >= chunk_size）。
	ErrInvalidConfiguration = errors.New("invalid retrieval configuration")

	// ErrUnsupportedFormat 表示上传文件的格式无法抽取文本。
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmbeddingUnavailable 表示向量化服务不可用或返回结果数量不符。
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch 表示向量维度与配置或已建索引不一致。
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnknownDocument 表示文档不存在。
	ErrUnknownDocument = errors.New("unknown document")

	// ErrStaleIndex 表示文档索引由其他向量化模型/维度构建，需重建后才能检索。
	ErrStaleIndex = errors.New("document index is stale")

	// ErrModelUnavailable 表示生成模型调用失败。
	ErrModelUnavailable = errors.New("language model unavailable")

	// ErrTimeout 表示下游调用超时。
	ErrTimeout = errors.New("downstream call timed out")

	// ErrPersistence 表示向量库或关系库写入/删除失败。
	ErrPersistence = errors.New("persistence operation failed")
)

package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"doc-qa-api/internal/application/retrieval"
)

// Extractor 将某类文件转换为纯文本。
type Extractor interface {
	// Supports 判断是否能处理该扩展名（统一小写，带点，如 ".pdf"）
	Supports(ext string) bool
	// Extract 读取文件并返回全文
	Extract(ctx context.Context, path string) (string, error)
}

// Registry 按扩展名分发到具体提取器。
type Registry struct {
	extractors []Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DefaultRegistry 返回内置提取器集合：纯文本与 PDF。
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPlainTextExtractor(),
		NewPDFExtractor(""),
	)
}

// Extract 根据文件扩展名选择提取器，找不到则返回 ErrUnsupportedFormat。
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.extractors {
		if e.Supports(ext) {
			return e.Extract(ctx, path)
		}
	}
	return "", fmt.Errorf("%w: %s", retrieval.ErrUnsupportedFormat, ext)
}

// Supports 判断该扩展名是否有可用的提取器。
func (r *Registry) Supports(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range r.extractors {
		if e.Supports(ext) {
			return true
		}
	}
	return false
}

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"doc-qa-api/internal/application/retrieval"
)

// PDFExtractor 通过 pdftotext（poppler-utils）提取 PDF 全文。
type PDFExtractor struct {
	binary string
}

// NewPDFExtractor 创建 PDF 提取器，binary 为空时默认使用 PATH 中的 pdftotext。
func NewPDFExtractor(binary string) *PDFExtractor {
	if binary == "" {
		binary = "pdftotext"
	}
	return &PDFExtractor{binary: binary}
}

func (e *PDFExtractor) Supports(ext string) bool {
	return ext == ".pdf"
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return "", fmt.Errorf("%w: pdftotext not installed", retrieval.ErrUnsupportedFormat)
	}

	// -layout 保持阅读顺序，"-" 输出到 stdout
	cmd := exec.CommandContext(ctx, e.binary, "-layout", "-nopgbrk", path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("pdftotext failed: %s", msg)
	}

	return stdout.String(), nil
}

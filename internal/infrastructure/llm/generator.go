package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"doc-qa-api/internal/application/qa"
	"doc-qa-api/internal/application/retrieval"
	"doc-qa-api/pkg/metrics"
)

const answerSystemPrompt = "你是一位严谨的问答助手。仅依据提供的上下文回答问题；" +
	"上下文中没有答案时，明确说明无法从文档中找到，不要编造。"

const noContextNote = "（未从文档中检索到相关内容）"

// Generator 基于 ChatModel 生成文档问答回复。
type Generator struct {
	factory *EinoFactory
}

var _ qa.Generator = (*Generator)(nil)

func NewGenerator(factory *EinoFactory) *Generator {
	return &Generator{factory: factory}
}

// GenerateAnswer 调用默认 ChatModel 生成回答。
func (g *Generator) GenerateAnswer(ctx context.Context, req *qa.AnswerRequest) (*qa.AnswerResult, error) {
	if req == nil || strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}

	chatModel, err := g.factory.Default(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", retrieval.ErrModelUnavailable, err)
	}
	provider, modelName := g.factory.DefaultProviderInfo()
	messages := buildMessages(req)

	start := time.Now()
	out, err := chatModel.Generate(ctx, messages)
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(provider, modelName).Observe(elapsed.Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(provider, modelName, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", retrieval.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", retrieval.ErrModelUnavailable, err)
	}
	metrics.LLMCallTotal.WithLabelValues(provider, modelName, "ok").Inc()

	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion", retrieval.ErrModelUnavailable)
	}

	return &qa.AnswerResult{
		Answer:    strings.TrimSpace(out.Content),
		Model:     modelName,
		ModelTime: elapsed,
	}, nil
}

// buildMessages 组装系统提示、历史与带上下文的用户消息。
func buildMessages(req *qa.AnswerRequest) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, schema.SystemMessage(answerSystemPrompt))
	for _, turn := range req.History {
		switch turn.Role {
		case "assistant":
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}

	// 无召回时也明确告知模型，而不是静默省略上下文
	docContext := strings.TrimSpace(req.Context)
	if docContext == "" {
		docContext = noContextNote
	}
	messages = append(messages, schema.UserMessage(docContext+"\n\n问题："+req.Question))
	return messages
}

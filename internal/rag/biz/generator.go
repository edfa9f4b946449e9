package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/sidi-cnm/supnum-backend/pkg/llm"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// SystemPrompt 系统提示词。
	SystemPrompt string
}

// Generator 负责答案生成。
// 生成后端是不可靠的外部调用，失败统一映射为 GenerationFailed。
type Generator struct {
	chatProvider llm.ChatProvider
	config       *GeneratorConfig
}

// NewGenerator 创建生成器实例。
func NewGenerator(chatProvider llm.ChatProvider, config *GeneratorConfig) *Generator {
	return &Generator{
		chatProvider: chatProvider,
		config:       config,
	}
}

// GenerateAnswer 基于检索上下文生成答案。
// contextBlock 为空时退化为无上下文直接回答。
func (g *Generator) GenerateAnswer(ctx context.Context, question, contextBlock string) (string, error) {
	if ctx.Err() != nil {
		return "", apierrors.ErrTimeout.WithCause(ctx.Err())
	}

	prompt := question
	if strings.TrimSpace(contextBlock) != "" {
		prompt = fmt.Sprintf("Contexte:\n%s\nQuestion: %s", contextBlock, question)
	}

	answer, err := g.chatProvider.Generate(ctx, prompt, g.config.SystemPrompt)
	if err != nil {
		logger.Errorw("answer generation failed", "error", err.Error())
		return "", apierrors.ErrGenerationFailed.WithCause(err)
	}

	logger.Infof("answer generated (length: %d)", len(answer))
	return answer, nil
}

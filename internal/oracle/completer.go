// Package oracle 裁判服务客户端：评判玩家行动与生成新关卡
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/wfunc/gamemaster/internal/config"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

// Completer 对话补全接口，返回模型输出的原始文本
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAICompleter 基于 OpenAI 兼容接口的补全实现（支持 DeepSeek、OpenRouter 等）
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAICompleter 创建补全客户端
func NewOpenAICompleter(cfg *config.OracleConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.ErrConfigMissing, "oracle.api_key")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete 请求补全，要求模型输出 JSON 对象
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrOracleMalformed, "响应中没有候选结果")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", apperrors.New(apperrors.ErrOracleMalformed, "响应内容为空")
	}
	return content, nil
}

func mapOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.ErrTimeout, "裁判服务")
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.Wrap(err, apperrors.ErrOracleCall,
			fmt.Sprintf("HTTP %d", apiErr.HTTPStatusCode))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return apperrors.Wrap(err, apperrors.ErrOracleCall, "请求过于频繁")
	}

	return apperrors.Wrap(err, apperrors.ErrOracleCall)
}

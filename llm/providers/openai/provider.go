// Package openai 基于 OpenAI Chat Completions API 实现 llm.Provider。
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const providerName = "openai"

// Config OpenAI Provider 配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider 实现 llm.Provider
type Provider struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// New 创建 OpenAI Provider
func New(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &Provider{client: &client, model: cfg.Model, logger: logger.With(zap.String("provider", providerName))}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return providerName }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Messages:    buildMessages(req.System, req.Messages),
		Model:       model,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		p.logger.Debug("chat completion failed", zap.String("model", model), zap.Error(err))
		return nil, classifyError(err)
	}
	return convertResponse(resp)
}

// buildMessages flattens content blocks into chat messages. Tool results become
// role=tool messages placed right after the assistant turn that requested them.
func buildMessages(system string, msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, m := range msgs {
		text := m.Text()
		if m.Role == types.RoleAssistant {
			uses := m.ToolUses()
			if len(uses) == 0 {
				out = append(out, openai.AssistantMessage(text))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(uses))
			for _, u := range uses {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   u.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      u.Name,
						Arguments: string(u.Input),
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls}
			if text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			continue
		}

		for _, b := range m.Content {
			if b.Type == types.BlockToolResult {
				out = append(out, openai.ToolMessage(b.Content, b.ToolUseID))
			}
		}
		if text != "" {
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

func buildTools(tools []types.ToolSchema) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters.AsMap(),
			},
		}
	}
	return out
}

func convertResponse(resp *openai.ChatCompletion) (*llm.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, types.NewUpstreamError("openai returned no choices").WithProvider(providerName)
	}
	choice := resp.Choices[0]
	out := &llm.Response{
		ID:         resp.ID,
		Model:      resp.Model,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if strings.TrimSpace(choice.Message.Content) != "" {
		out.Content = append(out.Content, types.NewTextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out.Content = append(out.Content, types.NewToolUseBlock(tc.ID, tc.Function.Name, args))
	}
	return out, nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return llm.StopEndTurn
	case "tool_calls", "function_call":
		return llm.StopToolUse
	case "length":
		return llm.StopMaxTokens
	default:
		return reason
	}
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return types.ClassifyHTTPStatus(apiErr.StatusCode, "openai request failed").
			WithCause(err).
			WithProvider(providerName)
	}
	return types.NewUpstreamError("openai request failed").
		WithHTTPStatus(http.StatusBadGateway).
		WithCause(err).
		WithProvider(providerName)
}

// Package anthropic 基于 Anthropic Messages API 实现 llm.Provider。
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/arvalo/arvalo/llm"
	"github.com/arvalo/arvalo/types"
	"go.uber.org/zap"
)

const providerName = "anthropic"

// Config Anthropic Provider 配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider 实现 llm.Provider
type Provider struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// New 创建 Anthropic Provider。SDK 自带的重试被关闭，由 agent 循环统一重试。
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
	client := anthropic.NewClient(opts...)
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

	messages, err := buildMessages(req.Messages)
	if err != nil {
		return nil, types.NewInvalidRequestError(err.Error()).WithProvider(providerName)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    messages,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Debug("messages request failed", zap.String("model", model), zap.Error(err))
		return nil, classifyError(err)
	}
	return convertResponse(resp), nil
}

// buildMessages converts conversation turns to Anthropic message params.
func buildMessages(msgs []types.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Content {
			switch b.Type {
			case types.BlockText:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case types.BlockToolUse:
				var input any
				if len(b.Input) > 0 {
					if err := json.Unmarshal(b.Input, &input); err != nil {
						return nil, fmt.Errorf("tool_use %s input: %w", b.ID, err)
					}
				}
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case types.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == types.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

// buildTools converts tool schemas to Anthropic tool params.
func buildTools(tools []types.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: t.Parameters.PropertiesMap(),
		}
		if t.Parameters != nil {
			schema.Required = t.Parameters.Required
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" && out[i].OfTool != nil {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}

// convertResponse maps an Anthropic message to the provider-neutral response.
func convertResponse(resp *anthropic.Message) *llm.Response {
	out := &llm.Response{
		ID:         resp.ID,
		Model:      string(resp.Model),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text := block.AsText()
			if text.Text != "" {
				out.Content = append(out.Content, types.NewTextBlock(text.Text))
			}
		case "tool_use":
			tu := block.AsToolUse()
			input, err := json.Marshal(tu.Input)
			if err != nil || string(input) == "null" {
				input = []byte(`{}`)
			}
			out.Content = append(out.Content, types.NewToolUseBlock(tu.ID, tu.Name, input))
		}
	}
	return out
}

// classifyError maps SDK errors to retryable / non-retryable types.Error.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return types.ClassifyHTTPStatus(apiErr.StatusCode, "anthropic request failed").
			WithCause(err).
			WithProvider(providerName)
	}
	return types.NewUpstreamError("anthropic request failed").
		WithHTTPStatus(http.StatusBadGateway).
		WithCause(err).
		WithProvider(providerName)
}

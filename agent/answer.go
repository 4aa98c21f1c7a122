package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/arvalo/arvalo/types"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractFinalAnswer 从后往前找最后一条 assistant 文本块。
// 能解析为 JSON 时返回解析值，否则返回原始文本；没有文本时返回 nil。
func ExtractFinalAnswer(messages []types.Message) any {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != types.RoleAssistant {
			continue
		}
		text, ok := msg.LastText()
		if !ok {
			continue
		}
		return ParseAnswer(text)
	}
	return nil
}

// ParseAnswer 解析 JSON，兼容 ```json 代码块；失败时原样返回文本
func ParseAnswer(text string) any {
	trimmed := strings.TrimSpace(text)
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	if m := fencedJSON.FindStringSubmatch(trimmed); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &v); err == nil {
			return v
		}
	}
	return text
}

// ValidateAnswer 按 Schema 校验答案数据
func ValidateAnswer(agentName string, schema *openapi3.Schema, data any) error {
	if schema == nil {
		return nil
	}
	if s, ok := data.(string); ok {
		return &MalformedAnswerError{Agent: agentName, Reason: "answer is not JSON", Data: s}
	}
	if data == nil {
		return &MalformedAnswerError{Agent: agentName, Reason: "no answer produced"}
	}
	if err := schema.VisitJSON(data, openapi3.MultiErrors()); err != nil {
		return &MalformedAnswerError{Agent: agentName, Reason: err.Error(), Data: data}
	}
	return nil
}

// DecodeAnswer 校验并把结果数据解码为 T
func DecodeAnswer[T any](res *Result, schema *openapi3.Schema) (T, error) {
	var out T
	if res == nil {
		return out, &MalformedAnswerError{Reason: "nil result"}
	}
	if err := ValidateAnswer(res.Agent, schema, res.Data); err != nil {
		return out, err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, fmt.Errorf("build answer decoder: %w", err)
	}
	if err := decoder.Decode(res.Data); err != nil {
		return out, &MalformedAnswerError{Agent: res.Agent, Reason: err.Error(), Data: res.Data}
	}
	return out, nil
}

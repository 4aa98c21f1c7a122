package specialists

import "strings"

// systemPrompt 专用 Agent 的系统提示，按段落渲染
type systemPrompt struct {
	Role        string
	Identity    string
	Policies    []string
	OutputRules []string
	Prohibits   []string
	// Shape 最终答案的 JSON 示例
	Shape string
}

func (s systemPrompt) Render() string {
	var parts []string
	if v := strings.TrimSpace(s.Role); v != "" {
		parts = append(parts, v)
	}
	if v := strings.TrimSpace(s.Identity); v != "" {
		parts = append(parts, v)
	}
	if len(s.Policies) > 0 {
		parts = append(parts, bulletSection("Policies:", s.Policies))
	}
	if len(s.OutputRules) > 0 {
		parts = append(parts, bulletSection("Output rules:", s.OutputRules))
	}
	if len(s.Prohibits) > 0 {
		parts = append(parts, bulletSection("Never:", s.Prohibits))
	}
	if v := strings.TrimSpace(s.Shape); v != "" {
		parts = append(parts, "Final answer format (a single JSON object, no prose around it):\n"+v)
	}
	return strings.Join(parts, "\n\n")
}

func bulletSection(title string, items []string) string {
	var cleaned []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			cleaned = append(cleaned, "- "+it)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}
	return title + "\n" + strings.Join(cleaned, "\n")
}

// 所有专用 Agent 共用的规则
var commonOutputRules = []string{
	"When you are done, reply with the final JSON object only. Do not call tools in the same turn as the final answer.",
	"Use null for values you could not determine. Never invent dates, prices or policy terms.",
	"Recommendations are short imperative sentences the user can act on today.",
}

// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package llm 定义模型补全能力的抽象。

agent 循环只依赖 Provider 接口：给定系统提示、对话消息和工具 Schema，
返回有序的内容块（text / tool_use）、Token 用量与停止原因。

具体实现位于 providers 子包（anthropic、openai），重试策略位于 retry，
成本计算位于 pricing，Token 估算位于 tokenizer。
*/
package llm

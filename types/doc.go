// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package types 提供 Arvalo 各层共享的基础类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。agent、llm、tools、workflow
以及 api 层都通过这里的类型交换数据，避免循环依赖。

# 核心类型

  - Message / ContentBlock：对话消息与内容块（text、tool_use、tool_result）
  - ToolSchema：暴露给模型的工具定义
  - ToolOutcome：工具执行结果信封 {success, data | error}
  - JSONSchema：工具输入 Schema 及构建器
  - Error / ErrorCode：结构化错误，带 HTTP 状态码与 Retryable 标记
*/
package types

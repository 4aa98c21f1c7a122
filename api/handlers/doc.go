// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Arvalo HTTP API 的请求处理器。

# 概述

所有 Handler 均为标准 net/http 处理函数，路由由 cmd/arvalo 使用 chi 组装。
响应统一为 Response 信封（success + data + error + timestamp），
失败的 Agent 结果按 ErrorKind 映射为 HTTP 状态码并在 data 中附带原始结果。

# 核心类型

  - AgentHandler：列出专家 Agent、按名称执行单个 Agent
  - WorkflowHandler：购买分析、小票转保修、并行批次与顺序工作流
  - ExecutionHandler：执行记录查询、聚合统计与 websocket 实时推送
  - HealthHandler：存活与就绪检查，可注册 HealthCheck
*/
package handlers

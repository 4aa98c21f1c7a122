// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

// Package api 内嵌 Arvalo HTTP API 的 OpenAPI 3 文档。
//
// openapi.yaml 与 cmd/arvalo 中注册的路由保持一致，由路由契约测试校验。
// 运行时在 GET /openapi.yaml 提供原文。
package api

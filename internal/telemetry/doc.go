// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry SDK。
//
// 启用时通过 OTLP gRPC 导出 trace 与 metric，并设置为全局 Provider；
// 关闭时返回 noop tracer，不连接任何外部服务。Agent 循环与编排器的
// span 都从 Providers.Tracer 获取。
package telemetry

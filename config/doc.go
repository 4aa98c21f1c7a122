// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

// Package config 提供 Arvalo 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env / 环境变量 的顺序叠加，最后统一校验。
// Reloader 监听配置文件变更，校验通过后替换当前配置并通知回调。
package config

// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

// Package tlsutil 为外呼 HTTP 客户端（搜索 API、商品页面抓取）与 Redis 连接
// 提供统一的 TLS 设置：TLS 1.2+，仅 AEAD 密码套件，限制重定向次数并拒绝降级到明文 HTTP。
package tlsutil

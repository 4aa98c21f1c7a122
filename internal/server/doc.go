// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

// Package server 管理 Arvalo HTTP 服务的生命周期：监听、后台服务、
// 收到取消信号后的优雅关闭，以及关闭后按逆序执行的清理钩子
// （停止巡检调度、关闭缓存与数据库连接、刷新遥测）。
package server

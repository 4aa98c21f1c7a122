// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package main 提供 arvalo 命令行入口。

# 子命令

  - serve：启动 HTTP API，按配置调度周期性价格巡检
  - analyze：对单个购买记录执行一次综合分析并输出 JSON
  - sweep：立即执行一次价格巡检
  - migrate：数据库迁移（up / down / status / version / goto / force）
  - version：输出构建信息

配置来自 YAML 文件、.env 文件与 ARVALO_ 前缀的环境变量。
Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main

// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package store 保存 Agent 工具读写的购买记录。

# 数据表

  - purchases：购买记录（商家、商品、价格、购买日期）
  - receipts：小票原文与解析摘要
  - subscriptions：订阅与周期扣费
  - warranties：保修记录
  - price_drops：检测到的降价
  - merchant_policies：商家退货 / 价保 / 保修政策

# 驱动

Open 支持 postgres、mysql 与 sqlite（glebarez/sqlite，纯 Go）。
生产环境由 internal/migration 管理 Schema，测试与本地开发可使用 AutoMigrate。
*/
package store

// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package migration 管理购买数据库的 Schema 版本。

迁移 SQL 按方言（postgres / mysql / sqlite）内嵌在二进制中，由
golang-migrate 在调用方已打开的连接上执行：

  - 000001_init_schema：purchases、receipts、subscriptions、warranties、
    price_drops、merchant_policies 六张表，与 store 包的模型一致。
  - 000002_seed_merchant_policies：常见商家的退货与保价政策。

DefaultMigrator 只借用连接，Close 不会关闭调用方的 *sql.DB。
CLI 为 `arvalo migrate` 子命令提供格式化输出。
*/
package migration

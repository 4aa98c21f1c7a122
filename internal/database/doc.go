// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package database 管理 GORM 连接池。

PoolManager 负责连接池参数、后台健康检查（Ping 与连接数上报）、
按操作类型计时的 gorm 回调，以及对死锁、序列化失败等瞬时错误
自动重试的 Transact。store.Repository 通过 UseTransactor 使用它。
*/
package database

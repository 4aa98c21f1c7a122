// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
包 cache 提供 Agent 结果缓存使用的键值存储。

# 核心类型

  - Store：带 TTL 的键值存储接口
  - Manager：基于 go-redis 的实现，带键前缀、健康检查与命中统计，
    适用于多实例共享缓存
  - MemoryStore：进程内实现，带容量上限与惰性过期，适用于单进程与测试
  - GetJSON / SetJSON：基于 Store 的 JSON 便捷方法
  - ErrCacheMiss / IsCacheMiss：未命中哨兵错误
*/
package cache

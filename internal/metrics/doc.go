// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package metrics 把 Arvalo 的运行指标导出为 Prometheus 格式。

Collector 同时实现 observability.Reporter 与 agent.CacheRecorder，
由组合根注入 Monitor 与 CachedAgent。指标分为以下几组：

  - HTTP：按 method/route/状态码区间计数与计时。
  - 模型调用：按 agent/model/status 计数，token 按 input/output 累加。
  - Agent：按终态（COMPLETE/EXHAUSTED/FAILED）计数，迭代次数与成本。
  - 工具：按 agent/tool 计数与计时。
  - 缓存与数据库：命中率、连接池状态、查询耗时。
  - 价格巡检：每次 sweep 的结果分布与耗时。

NewCollector 接受外部 Registerer；传 nil 时创建独立 Registry，
并通过 Handler 暴露给 /metrics。
*/
package metrics

// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package workflow 在 agent.Executor 之上编排多个 Agent。

# 编排方式

  - ExecuteWorkflow  顺序执行。每一步成功后把结果写入共享上下文
    "<agent>_result"，后续步骤可见；任一步失败立即中止。
  - ExecuteParallel  并发执行互不依赖的任务（errgroup，可限制并发数）。
    单个任务失败或 panic 不影响其他任务。
  - AnalyzePurchase  对同一笔购买并发运行 return-policy、price-detective、
    recurrent-optimizer，合并并去重建议。
  - ReceiptToWarranty 小票解析后为其中的商品登记保修（顺序）。

所有方法都不返回 error、不 panic：失败体现在结果对象中。

Sweeper 定期对仍在价保期内的购买运行 price-detective。
*/
package workflow

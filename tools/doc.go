// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package tools 提供专用 Agent 使用的领域工具。

# 工具

  - 购买数据：get_purchase、list_purchases、save_purchase、get_receipt、
    list_subscriptions、save_warranty、list_warranties、record_price_drop、
    lookup_merchant（均由 store.Repository 支撑）
  - web_search：通过 Searcher 接口调用外部搜索服务
  - check_price：抓取商品页面并用 x/net/html 提取当前价格，按域名限流

# 用户范围

数据类工具优先从 context 读取用户（ctxkeys.UserID，由 Agent 执行时写入），
只有 context 中没有时才使用参数中的 user_id。

# 使用方式

	catalog := tools.NewCatalog(tools.Deps{Repo: repo, Searcher: searcher, Prices: checker})
	reg, err := catalog.Registry(tools.GetPurchase, tools.CheckPrice)
*/
package tools

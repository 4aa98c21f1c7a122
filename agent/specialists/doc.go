// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package specialists 提供五个面向购买场景的专用 Agent。

每个专用 Agent 只是循环引擎之上的一层配置：固定的系统提示（写明最终 JSON
的结构）、从 tools.Catalog 中挑选的工具子集、答案的 OpenAPI Schema，以及
若干构造 agent.Input 的便捷入口。

	receipt              小票解析，写入购买记录
	return-policy        退货资格与截止日期
	price-detective      降价检测与价保申请
	recurrent-optimizer  周期性消费与重复扣费
	warranty             保修提取与到期提醒

每个入口都有两种形式：返回 *agent.Result 的原始形式，以及解码为具体答案
类型的 ...Answer 形式。NewSet 一次性构建全部 Agent，供组合根注入。
*/
package specialists

// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package agent 实现带工具调用的 Agent 循环引擎。

# 概述

Agent 由配置（模型、系统提示、迭代上限）、工具注册表 Registry 和
llm.Provider 组成。Execute 驱动一个有界循环：

 1. 把完整对话、系统提示和工具 Schema 发送给模型
 2. 按模型给出的顺序逐个执行 tool_use，并以 tool_result 回填对话
 3. 模型不再请求工具（或给出自然停止原因）时结束；达到迭代上限时以
    EXHAUSTED 结束

Execute 从不返回 error：模型失败、超时、取消、panic 都以
Result{Success:false} 的形式返回，并附带 ErrorKind。

# 状态

	RUNNING ──► COMPLETE
	        ├─► EXHAUSTED
	        └─► FAILED

# 最终答案

最终答案取最后一条 assistant 文本块，能解析为 JSON 时返回解析结果，否则返回
原始文本。配置 AnswerSchema 后会按 Schema 校验，失败时返回
ErrorKindMalformedAnswer。DecodeAnswer 把结果解码为具体类型。

# 组合

CachedAgent 为任意 Executor 加上带 TTL 的结果缓存；workflow 包在 Executor
之上实现顺序与并行编排。
*/
package agent

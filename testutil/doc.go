// Copyright (c) Arvalo Authors.
// Licensed under the MIT License.

/*
Package testutil 提供各包测试共享的辅助函数。

  - TestContext：带上限的测试上下文，自动注册 Cleanup
  - CancelledContext：已取消的上下文

子包 testutil/mocks 提供 ScriptedProvider（按脚本逐轮返回的模型）、
响应构造函数 TextResponse / ToolUseResponse，以及 EchoFunc / FailingFunc / CallLog 等工具替身。
*/
package testutil

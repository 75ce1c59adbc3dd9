// Copyright 2026 ACT-1-The-Prophecy
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import "context"

// Handler 能力处理器：按 topic 注册，将任务 payload 转为结果。
// 结果可为字符串或可序列化的结构化值，由处理管线归一化为提交字符串
type Handler interface {
	// Topic 处理器负责的 topic 标识（注册表查找键）
	Topic() string
	// Handle 处理任务 payload；失败返回 error，任务留待下次投递重试
	Handle(ctx context.Context, payload string) (interface{}, error)
}

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

package state

import (
	"context"
)

// Snapshot 持久化台账的整体快照：水位 + 已处理任务集合。
// 每次持久化整体覆写，启动时整体加载；缺失或损坏时从默认值开始，不视为致命错误
type Snapshot struct {
	LastProcessedBlock uint64   `json:"last_processed_block"`
	ProcessedTaskIDs   []string `json:"processed_task_ids"`
}

// Store 幂等台账：已处理任务集合与处理水位的唯一权威。
// 仅本组件可变更台账；变更与持久化在同一临界区内完成，持久化始终写整体快照
type Store interface {
	// Load 启动时加载一次；底层无数据时保持默认值（水位 0、空集合）
	Load(ctx context.Context) error
	// IsProcessed 任务是否已完成处理（结果已被账本接受）
	IsProcessed(taskID string) bool
	// MarkProcessed 标记任务完成；仅在提交确认后调用
	MarkProcessed(taskID string)
	// AdvanceWatermark 推进水位；block 不大于当前水位时为 no-op（水位单调不减）
	AdvanceWatermark(block uint64)
	// Watermark 当前水位（已完整处理的最高块）
	Watermark() uint64
	// ProcessedCount 已处理任务数（状态查询用）
	ProcessedCount() int
	// Persist 将整体快照写入稳定存储，覆盖旧内容
	Persist(ctx context.Context) error
	// Close 释放底层资源
	Close() error
}

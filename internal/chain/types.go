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

package chain

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// TaskState marketplace 合约侧的任务状态机
type TaskState uint8

const (
	TaskCreated TaskState = iota
	TaskAssigned
	TaskSubmitted
	TaskValidated
	TaskDisputed
	TaskClosed
)

// String 返回状态名（日志用）
func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskAssigned:
		return "assigned"
	case TaskSubmitted:
		return "submitted"
	case TaskValidated:
		return "validated"
	case TaskDisputed:
		return "disputed"
	case TaskClosed:
		return "closed"
	}
	return "unknown"
}

// TaskRecord 合约侧任务记录；真相归账本所有，本地仅持有单次处理内的只读副本，不跨尝试缓存
type TaskRecord struct {
	ID            uint64    `json:"id"`
	AssignedAgent string    `json:"assigned_agent"`
	Topic         string    `json:"topic"` // 定宽标识（0x + 64 位十六进制）
	Payload       string    `json:"payload"`
	State         TaskState `json:"state"`
}

// EventKind 任务指派事件类型
type EventKind string

const (
	// AssignedByClient 客户直接指派给 agent
	AssignedByClient EventKind = "assigned_by_client"
	// AssignedByAgent agent 主动接单产生的指派
	AssignedByAgent EventKind = "assigned_by_agent"
)

// Event 账本网关产出的原始指派事件；排序键 (BlockHeight, LogIndex) 升序
type Event struct {
	TaskID      uint64    `json:"task_id"`
	Agent       string    `json:"agent"`
	BlockHeight uint64    `json:"block_height"`
	LogIndex    uint32    `json:"log_index"`
	Kind        EventKind `json:"kind"`
}

// Before 判断事件在另一事件之前发生（按 (BlockHeight, LogIndex)）
func (e Event) Before(other Event) bool {
	if e.BlockHeight != other.BlockHeight {
		return e.BlockHeight < other.BlockHeight
	}
	return e.LogIndex < other.LogIndex
}

// DecodeTopic 将定宽 topic 标识解码为可读字符串（十六进制 → 去零填充 UTF-8）；
// 解码失败时回退为原始标识，以便仍可用作注册表查找键
func DecodeTopic(raw string) string {
	h := strings.TrimPrefix(raw, "0x")
	b, err := hex.DecodeString(h)
	if err != nil {
		return raw
	}
	b = []byte(strings.TrimRight(string(b), "\x00"))
	if len(b) == 0 || !utf8.Valid(b) {
		return raw
	}
	for _, c := range string(b) {
		if c < 0x20 || c == 0x7f {
			return raw
		}
	}
	return string(b)
}

// SameAddress 地址比较（大小写不敏感；链上地址大小写仅为校验和差异）
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

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
	"context"
	"errors"
)

var (
	// ErrTaskNotFound 账本上不存在该任务
	ErrTaskNotFound = errors.New("chain: task not found")
	// ErrSubmitRejected 提交已上链但被合约拒绝（任务不在可提交状态等）
	ErrSubmitRejected = errors.New("chain: result submission rejected")
)

// Gateway 账本网关：marketplace 合约的读/查/写服务，本模块将其视为不透明外部协作方
type Gateway interface {
	// FetchTask 拉取任务当前记录；不存在返回 ErrTaskNotFound
	FetchTask(ctx context.Context, taskID uint64) (*TaskRecord, error)
	// SubmitResult 提交任务结果并等待接受确认（非仅提交）；返回交易哈希
	SubmitResult(ctx context.Context, taskID uint64, result string) (txHash string, err error)
	// QueryEvents 查询 [fromBlock, toBlock] 区间内某 agent 的某类指派事件，按追加序返回
	QueryEvents(ctx context.Context, kind EventKind, agent string, fromBlock, toBlock uint64) ([]Event, error)
	// CurrentHeight 返回账本当前块高
	CurrentHeight(ctx context.Context) (uint64, error)
	// Subscribe 订阅该 agent 的两类指派事件；ctx 结束后 channel 关闭
	Subscribe(ctx context.Context, agent string) (<-chan Event, error)
}

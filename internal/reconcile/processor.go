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

package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/handler"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/metrics"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/tracing"
)

// Outcome 单次处理的终态
type Outcome string

const (
	// OutcomeCompleted 结果已被账本接受并在本地标记完成
	OutcomeCompleted Outcome = "completed"
	// OutcomeSkipped 策略性跳过（已处理、非本 agent、状态不符、无处理器），非错误
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed 处理失败；任务未标记完成，等待下次投递重试
	OutcomeFailed Outcome = "failed"
)

// Processor 任务处理状态机：追赶扫描与实时订阅共用的唯一入口。
// 幂等检查 → 拉取 → 校验 → 执行 → 提交确认 → 本地标记，任一失败均不污染台账
type Processor struct {
	gateway      chain.Gateway
	registry     *handler.Registry
	store        state.Store
	submitter    *Submitter
	agentAddress string
	logger       *log.Logger

	mu       sync.Mutex
	inflight map[string]struct{} // 处理中的任务，吸收追赶与订阅的同任务竞争
}

// NewProcessor 创建任务处理器
func NewProcessor(
	gateway chain.Gateway,
	registry *handler.Registry,
	store state.Store,
	submitter *Submitter,
	agentAddress string,
	logger *log.Logger,
) *Processor {
	return &Processor{
		gateway:      gateway,
		registry:     registry,
		store:        store,
		submitter:    submitter,
		agentAddress: agentAddress,
		logger:       logger,
		inflight:     make(map[string]struct{}),
	}
}

// Process 处理一条指派事件并返回终态；错误在内部隔离，绝不向上传播 panic 或 error
func (p *Processor) Process(ctx context.Context, ev chain.Event) (outcome Outcome) {
	taskKey := strconv.FormatUint(ev.TaskID, 10)
	start := time.Now()
	topic := "unknown"
	defer func() {
		if r := recover(); r != nil {
			// §处理内任何意外失败仅隔离记录，任务留待重试
			p.logger.Error("任务处理发生意外异常", "task_id", taskKey, "panic", fmt.Sprint(r))
			outcome = OutcomeFailed
		}
		metrics.TaskTotal.WithLabelValues(string(outcome)).Inc()
		metrics.TaskDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.StartTaskSpan(ctx, taskKey, string(ev.Kind))
	defer span.End()

	metrics.InFlightTasks.Inc()
	defer metrics.InFlightTasks.Dec()

	// RECEIVED → FETCHED：幂等检查先行
	if p.store.IsProcessed(taskKey) {
		p.logger.Info("任务已处理，跳过", "task_id", taskKey, "block", ev.BlockHeight)
		metrics.TaskSkipTotal.WithLabelValues("already_processed").Inc()
		return OutcomeSkipped
	}
	if !p.acquire(taskKey) {
		// 同任务已在处理中（追赶与订阅竞争同一事件）
		p.logger.Info("任务处理中，放弃重复投递", "task_id", taskKey)
		metrics.TaskSkipTotal.WithLabelValues("already_processed").Inc()
		return OutcomeSkipped
	}
	defer p.release(taskKey)

	task, err := p.gateway.FetchTask(ctx, ev.TaskID)
	if err != nil {
		if err == chain.ErrTaskNotFound {
			p.logger.Warn("账本上无此任务，跳过", "task_id", taskKey)
			return OutcomeSkipped
		}
		p.logger.Error("拉取任务失败", "task_id", taskKey, "error", err)
		return OutcomeFailed
	}

	// FETCHED → VALIDATED：指派与状态门禁，拦截过期事件
	if !chain.SameAddress(task.AssignedAgent, p.agentAddress) {
		p.logger.Info("任务未指派给本 agent，跳过",
			"task_id", taskKey, "assigned", task.AssignedAgent)
		metrics.TaskSkipTotal.WithLabelValues("not_assignee").Inc()
		return OutcomeSkipped
	}
	if task.State != chain.TaskAssigned {
		p.logger.Info("任务状态不可处理，跳过",
			"task_id", taskKey, "state", task.State.String())
		metrics.TaskSkipTotal.WithLabelValues("wrong_state").Inc()
		return OutcomeSkipped
	}

	// VALIDATED → HANDLED：topic 解码失败时以原始标识为查找键
	topic = chain.DecodeTopic(task.Topic)
	h, ok := p.registry.Get(topic)
	if !ok {
		// 重投不会带来处理器，不重试
		p.logger.Error("无匹配能力处理器，跳过", "task_id", taskKey, "topic", topic)
		metrics.TaskSkipTotal.WithLabelValues("no_handler").Inc()
		return OutcomeSkipped
	}
	result, err := h.Handle(ctx, task.Payload)
	if err != nil {
		p.logger.Error("能力处理器执行失败", "task_id", taskKey, "topic", topic, "error", err)
		return OutcomeFailed
	}
	normalized, err := normalizeResult(result)
	if err != nil {
		p.logger.Error("结果序列化失败", "task_id", taskKey, "topic", topic, "error", err)
		return OutcomeFailed
	}

	// HANDLED → SUBMITTED → COMPLETED：先账本确认，后本地落账（exactly-once 的锚点）
	txHash, err := p.submitter.Submit(ctx, ev.TaskID, normalized)
	if err != nil {
		p.logger.Error("结果提交未被接受", "task_id", taskKey, "topic", topic, "error", err)
		return OutcomeFailed
	}
	p.store.MarkProcessed(taskKey)
	if err := p.store.Persist(ctx); err != nil {
		// 提交已确认但本地落账失败：接受窄幂等窗口，重启后的重复提交由合约状态机拒绝
		p.logger.Error("台账持久化失败", "task_id", taskKey, "error", err)
	}
	p.logger.Info("任务处理完成", "task_id", taskKey, "topic", topic, "tx_hash", txHash)
	return OutcomeCompleted
}

func (p *Processor) acquire(taskKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[taskKey]; ok {
		return false
	}
	p.inflight[taskKey] = struct{}{}
	return true
}

func (p *Processor) release(taskKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, taskKey)
}

// normalizeResult 将处理器结果归一化为提交字符串：字符串透传，结构化值 JSON 序列化
func normalizeResult(result interface{}) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

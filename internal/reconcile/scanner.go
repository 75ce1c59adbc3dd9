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
	"fmt"
	"sort"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/metrics"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/tracing"
)

// Scanner 追赶扫描器：启动时回放水位之后的漏处理事件。
// 事件必须按 (BlockHeight, LogIndex) 升序处理：同一任务的后发事件可能代表重新指派
type Scanner struct {
	gateway         chain.Gateway
	store           state.Store
	processor       *Processor
	agentAddress    string
	deploymentBlock uint64
	logger          *log.Logger
}

// NewScanner 创建追赶扫描器；deploymentBlock 为水位未设置时的扫描起点
func NewScanner(
	gateway chain.Gateway,
	store state.Store,
	processor *Processor,
	agentAddress string,
	deploymentBlock uint64,
	logger *log.Logger,
) *Scanner {
	return &Scanner{
		gateway:         gateway,
		store:           store,
		processor:       processor,
		agentAddress:    agentAddress,
		deploymentBlock: deploymentBlock,
		logger:          logger,
	}
}

// Run 执行一轮追赶扫描：[水位+1, 当前块高] 内两类事件按序逐个处理，
// 每处理完一个事件即推进水位并持久化，中途崩溃可从最后完整处理的事件恢复
func (s *Scanner) Run(ctx context.Context) error {
	fromBlock := s.store.Watermark() + 1
	if s.store.Watermark() == 0 && s.deploymentBlock > 0 {
		fromBlock = s.deploymentBlock
	}
	toBlock, err := s.gateway.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: 获取当前块高: %w", err)
	}
	if toBlock < fromBlock {
		s.logger.Info("水位已达当前块高，无需追赶", "watermark", s.store.Watermark(), "height", toBlock)
		return nil
	}

	ctx, span := tracing.StartScanSpan(ctx, fromBlock, toBlock)
	defer span.End()

	var events []chain.Event
	for _, kind := range []chain.EventKind{chain.AssignedByClient, chain.AssignedByAgent} {
		batch, err := s.gateway.QueryEvents(ctx, kind, s.agentAddress, fromBlock, toBlock)
		if err != nil {
			return fmt.Errorf("reconcile: 查询 %s 事件: %w", kind, err)
		}
		events = append(events, batch...)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Before(events[j]) })
	s.logger.Info("开始追赶扫描",
		"from_block", fromBlock, "to_block", toBlock, "events", len(events))

	for _, ev := range events {
		outcome := s.processor.Process(ctx, ev)
		metrics.CatchupEventTotal.Inc()
		if outcome == OutcomeFailed {
			// 失败任务不推进水位；区间尾部的整体推进仍会越过它，
			// 该任务依赖实时订阅或人工补投重试
			continue
		}
		s.advance(ctx, ev.BlockHeight)
	}

	// 区间尾部无事件时也要推进到 toBlock
	s.advance(ctx, toBlock)
	s.logger.Info("追赶扫描完成", "watermark", s.store.Watermark())
	return nil
}

func (s *Scanner) advance(ctx context.Context, block uint64) {
	s.store.AdvanceWatermark(block)
	if err := s.store.Persist(ctx); err != nil {
		s.logger.Error("水位持久化失败", "block", block, "error", err)
		return
	}
	metrics.WatermarkHeight.Set(float64(s.store.Watermark()))
}

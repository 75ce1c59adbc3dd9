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
	"sync"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
)

const (
	defaultConcurrency = 4
	defaultQueueSize   = 64
)

// Subscriber 实时订阅消费：订阅事件进入有界队列，worker 并发处理不同任务，
// 同一任务的重复投递由 Processor 的幂等检查与在处理标记吸收
type Subscriber struct {
	gateway      chain.Gateway
	processor    *Processor
	agentAddress string
	concurrency  int
	queueSize    int
	logger       *log.Logger
	wg           sync.WaitGroup
}

// NewSubscriber 创建订阅消费器；concurrency<=0 时默认 4，queueSize<=0 时默认 64
func NewSubscriber(
	gateway chain.Gateway,
	processor *Processor,
	agentAddress string,
	concurrency, queueSize int,
	logger *log.Logger,
) *Subscriber {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Subscriber{
		gateway:      gateway,
		processor:    processor,
		agentAddress: agentAddress,
		concurrency:  concurrency,
		queueSize:    queueSize,
		logger:       logger,
	}
}

// Start 注册订阅并启动 worker；单任务的处理失败只隔离记录，不影响订阅本身
func (s *Subscriber) Start(ctx context.Context) error {
	events, err := s.gateway.Subscribe(ctx, s.agentAddress)
	if err != nil {
		return err
	}
	queue := make(chan chain.Event, s.queueSize)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(queue)
		for ev := range events {
			select {
			case <-ctx.Done():
				return
			case queue <- ev:
			}
		}
	}()

	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for ev := range queue {
				s.processor.Process(ctx, ev)
			}
		}()
	}
	s.logger.Info("实时订阅已启动", "concurrency", s.concurrency, "queue_size", s.queueSize)
	return nil
}

// Wait 等待订阅与全部 worker 退出（ctx 取消后调用）
func (s *Subscriber) Wait() {
	s.wg.Wait()
}

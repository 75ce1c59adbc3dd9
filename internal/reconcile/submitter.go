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
	"errors"
	"strconv"
	"time"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/metrics"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/tracing"
)

const (
	defaultSubmitAttempts = 3
	defaultSubmitDelay    = 10 * time.Second
)

// ErrExhausted 所有提交尝试均未被接受
var ErrExhausted = errors.New("reconcile: submission attempts exhausted")

// Submitter 带界重试的结果提交器：每次尝试等待接受确认，失败后固定延迟再试。
// 固定延迟为既定行为；指数退避与整体期限见 DESIGN.md 的改进项
type Submitter struct {
	gateway  chain.Gateway
	attempts int
	delay    time.Duration
	logger   *log.Logger
}

// NewSubmitter 创建提交器；attempts<=0 时默认 3，delay<=0 时默认 10s
func NewSubmitter(gateway chain.Gateway, attempts int, delay time.Duration, logger *log.Logger) *Submitter {
	if attempts <= 0 {
		attempts = defaultSubmitAttempts
	}
	if delay <= 0 {
		delay = defaultSubmitDelay
	}
	return &Submitter{
		gateway:  gateway,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
	}
}

// Submit 提交结果直至确认接受或尝试耗尽；合约侧拒绝不重试（重试不会改变合约状态）
func (s *Submitter) Submit(ctx context.Context, taskID uint64, result string) (string, error) {
	ctx, span := tracing.StartSubmitSpan(ctx, strconv.FormatUint(taskID, 10))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		txHash, err := s.gateway.SubmitResult(ctx, taskID, result)
		if err == nil {
			metrics.SubmitAttemptTotal.WithLabelValues("accepted").Inc()
			return txHash, nil
		}
		metrics.SubmitAttemptTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, chain.ErrSubmitRejected) {
			s.logger.Error("结果提交被合约拒绝", "task_id", taskID, "error", err)
			return txHash, err
		}
		lastErr = err
		s.logger.Warn("结果提交失败",
			"task_id", taskID, "attempt", attempt, "max_attempts", s.attempts, "error", err)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}
	metrics.SubmitExhaustedTotal.Inc()
	s.logger.Error("结果提交重试耗尽", "task_id", taskID, "attempts", s.attempts, "error", lastErr)
	return "", errors.Join(ErrExhausted, lastErr)
}

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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultPollInterval    = 5 * time.Second
	receiptPollInterval    = 2 * time.Second
	receiptPollMaxAttempts = 30
	subscribeChanBuffer    = 64
)

// RestConfig REST 网关配置
type RestConfig struct {
	GatewayURL      string
	ContractAddress string
	SigningKey      string
	RequestTimeout  time.Duration // <=0 则 30s
	RateLimitQPS    float64       // <=0 不限速
	PollInterval    time.Duration // 订阅轮询间隔，<=0 则 5s
}

// RestGateway Gateway 的 HTTP 实现；marketplace 网关服务以 JSON 暴露合约读/查/写
type RestGateway struct {
	client       *resty.Client
	limiter      *rate.Limiter
	contract     string
	signingKey   string
	pollInterval time.Duration
	logger       *log.Logger
}

// NewRestGateway 创建 REST 网关客户端
func NewRestGateway(cfg RestConfig, logger *log.Logger) (*RestGateway, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("chain: gateway_url 不能为空")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("chain: contract_address 不能为空")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	client := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	var limiter *rate.Limiter
	if cfg.RateLimitQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitQPS), 1)
	}
	return &RestGateway{
		client:       client,
		limiter:      limiter,
		contract:     cfg.ContractAddress,
		signingKey:   cfg.SigningKey,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

func (g *RestGateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// FetchTask 拉取任务当前记录
func (g *RestGateway) FetchTask(ctx context.Context, taskID uint64) (*TaskRecord, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var task TaskRecord
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&task).
		Get(fmt.Sprintf("/v1/contracts/%s/tasks/%d", g.contract, taskID))
	if err != nil {
		return nil, fmt.Errorf("chain: fetch task %d: %w", taskID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrTaskNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("chain: fetch task %d: %s", taskID, resp.String())
	}
	return &task, nil
}

type submitRequest struct {
	Result string `json:"result"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

type receiptResponse struct {
	Status string `json:"status"` // pending | confirmed | rejected
}

// SubmitResult 提交结果并轮询回执直至接受确认；合约侧拒绝返回 ErrSubmitRejected
func (g *RestGateway) SubmitResult(ctx context.Context, taskID uint64, result string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(submitRequest{Result: result})
	if err != nil {
		return "", err
	}
	var out submitResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("X-Act-Signature", g.sign(body)).
		// 请求关联 ID，网关侧日志与回执按此对齐
		SetHeader("X-Request-Id", uuid.NewString()).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/v1/contracts/%s/tasks/%d/result", g.contract, taskID))
	if err != nil {
		return "", fmt.Errorf("chain: submit result for task %d: %w", taskID, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusAccepted {
		return "", fmt.Errorf("chain: submit result for task %d: %s", taskID, resp.String())
	}
	if err := g.awaitReceipt(ctx, out.TxHash); err != nil {
		return out.TxHash, err
	}
	return out.TxHash, nil
}

// awaitReceipt 轮询交易回执直到 confirmed/rejected
func (g *RestGateway) awaitReceipt(ctx context.Context, txHash string) error {
	for attempt := 0; attempt < receiptPollMaxAttempts; attempt++ {
		var receipt receiptResponse
		resp, err := g.client.R().
			SetContext(ctx).
			SetResult(&receipt).
			Get(fmt.Sprintf("/v1/contracts/%s/receipts/%s", g.contract, txHash))
		if err != nil {
			return fmt.Errorf("chain: receipt %s: %w", txHash, err)
		}
		if resp.StatusCode() == http.StatusOK {
			switch receipt.Status {
			case "confirmed":
				return nil
			case "rejected":
				return ErrSubmitRejected
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
	return fmt.Errorf("chain: receipt %s 未在期限内确认", txHash)
}

// QueryEvents 查询指派事件；网关按追加序返回
func (g *RestGateway) QueryEvents(ctx context.Context, kind EventKind, agent string, fromBlock, toBlock uint64) ([]Event, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var out struct {
		Events []Event `json:"events"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"kind":       string(kind),
			"agent":      agent,
			"from_block": strconv.FormatUint(fromBlock, 10),
			"to_block":   strconv.FormatUint(toBlock, 10),
		}).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/contracts/%s/events", g.contract))
	if err != nil {
		return nil, fmt.Errorf("chain: query %s events: %w", kind, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("chain: query %s events: %s", kind, resp.String())
	}
	return out.Events, nil
}

// CurrentHeight 返回账本当前块高
func (g *RestGateway) CurrentHeight(ctx context.Context) (uint64, error) {
	if err := g.wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Height uint64 `json:"height"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/height")
	if err != nil {
		return 0, fmt.Errorf("chain: current height: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("chain: current height: %s", resp.String())
	}
	return out.Height, nil
}

// Subscribe 以轮询模拟推送订阅：每个间隔查询新块区间内两类事件并按序推送；
// 网关侧已按 agent 过滤，推送可能与追赶扫描重复，由处理侧幂等检查吸收
func (g *RestGateway) Subscribe(ctx context.Context, agent string) (<-chan Event, error) {
	lastSeen, err := g.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe: %w", err)
	}
	ch := make(chan Event, subscribeChanBuffer)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(g.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			height, err := g.CurrentHeight(ctx)
			if err != nil {
				g.logger.Warn("订阅轮询获取块高失败", "error", err)
				continue
			}
			if height <= lastSeen {
				continue
			}
			var batch []Event
			failed := false
			for _, kind := range []EventKind{AssignedByClient, AssignedByAgent} {
				events, err := g.QueryEvents(ctx, kind, agent, lastSeen+1, height)
				if err != nil {
					g.logger.Warn("订阅轮询查询事件失败", "kind", kind, "error", err)
					failed = true
					break
				}
				batch = append(batch, events...)
			}
			if failed {
				// 区间下次重查，避免漏推
				continue
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Before(batch[j]) })
			for _, ev := range batch {
				select {
				case <-ctx.Done():
					return
				case ch <- ev:
				}
			}
			lastSeen = height
		}
	}()
	return ch, nil
}

// sign 对请求体做 HMAC-SHA256 签名（hex）；网关据此校验 agent 的写权限
func (g *RestGateway) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(g.signingKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

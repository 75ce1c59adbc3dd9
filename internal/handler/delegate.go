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

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultDelegateTimeout = 60 * time.Second

// delegateHandler 将 payload 转发至远端能力端点，端点返回的 JSON 即为结果
type delegateHandler struct {
	topic  string
	client *resty.Client
}

// NewDelegateHandler 创建远端能力处理器；timeout<=0 时默认 60s
func NewDelegateHandler(topic, url string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = defaultDelegateTimeout
	}
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &delegateHandler{topic: topic, client: client}
}

func (h *delegateHandler) Topic() string { return h.topic }

func (h *delegateHandler) Handle(ctx context.Context, payload string) (interface{}, error) {
	var out json.RawMessage
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"topic": h.topic, "payload": payload}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("handler: delegate %s: %w", h.topic, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("handler: delegate %s: %s", h.topic, resp.String())
	}
	return out, nil
}

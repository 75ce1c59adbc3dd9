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

package http

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/metrics"
)

// Handler 只读查询门面：对第三方暴露任务与对账进度，自身不持有任何状态
type Handler struct {
	gateway chain.Gateway
	store   state.Store
	topics  []string
}

// NewHandler 创建查询门面 Handler；topics 为本 worker 声明的能力列表
func NewHandler(gateway chain.Gateway, store state.Store, topics []string) *Handler {
	return &Handler{gateway: gateway, store: store, topics: topics}
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GetTask 查询单个任务：链上记录 + 本地处理状态
// GET /api/tasks/:id
func (h *Handler) GetTask(c context.Context, ctx *app.RequestContext) {
	idStr := ctx.Param("id")
	taskID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid task id: " + idStr,
		})
		return
	}

	task, err := h.gateway.FetchTask(c, taskID)
	if err != nil {
		if errors.Is(err, chain.ErrTaskNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{
				"error": "task not found",
			})
			return
		}
		hlog.CtxErrorf(c, "fetch task %d failed: %v", taskID, err)
		ctx.JSON(consts.StatusBadGateway, map[string]string{
			"error": "ledger gateway unavailable",
		})
		return
	}

	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"id":             task.ID,
		"assigned_agent": task.AssignedAgent,
		"topic":          chain.DecodeTopic(task.Topic),
		"state":          task.State.String(),
		"processed":      h.store.IsProcessed(idStr),
	})
}

// Status 对账进度：水位、已处理数、链上当前块高与能力列表
// GET /api/status
func (h *Handler) Status(c context.Context, ctx *app.RequestContext) {
	resp := map[string]interface{}{
		"watermark":       h.store.Watermark(),
		"processed_count": h.store.ProcessedCount(),
		"topics":          h.topics,
	}
	height, err := h.gateway.CurrentHeight(c)
	if err != nil {
		hlog.CtxWarnf(c, "query current height failed: %v", err)
	} else {
		resp["chain_height"] = height
		if height >= h.store.Watermark() {
			resp["lag_blocks"] = height - h.store.Watermark()
		}
	}
	ctx.JSON(consts.StatusOK, resp)
}

// Metrics Prometheus 抓取端点
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

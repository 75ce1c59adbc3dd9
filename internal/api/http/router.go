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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
}

// NewRouter 创建 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Build 构建 Hertz 服务并装载路由，addr 如 ":8080"
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append(opts, server.WithHostPorts(addr))
	h := server.Default(opts...)
	h.Use(r.middleware.AccessLog())

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/status", r.middleware.CORS(), r.handler.Status)
	api.GET("/tasks/:id", r.middleware.CORS(), r.handler.GetTask)

	h.GET("/metrics", r.handler.Metrics)
	return h
}

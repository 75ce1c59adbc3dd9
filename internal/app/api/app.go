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

package api

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/api/http"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/api/http/middleware"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/app"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/config"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App 查询门面应用：只读代理链上任务与本地对账进度，自身无状态
type App struct {
	bootstrap    *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建查询门面应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	topics := declaredTopics(bootstrap)
	handler := http.NewHandler(bootstrap.Gateway, bootstrap.StateStore, topics)
	router := http.NewRouter(handler, middleware.NewMiddleware())
	return &App{bootstrap: bootstrap, router: router}, nil
}

// declaredTopics 从配置汇总本 worker 声明的能力列表
func declaredTopics(bootstrap *app.Bootstrap) []string {
	if bootstrap.Config == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var topics []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	for _, name := range bootstrap.Config.Handlers.Builtin {
		add(name)
	}
	for topic := range bootstrap.Config.Handlers.Delegate {
		add(topic)
	}
	sort.Strings(topics)
	return topics
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.bootstrap.Logger.Info("查询门面启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 日志配置对齐
	output := os.Stdout
	if a.bootstrap.Config != nil && a.bootstrap.Config.Log.File != "" {
		f, err := os.OpenFile(a.bootstrap.Config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelInfo)
	if a.bootstrap.Config != nil {
		switch a.bootstrap.Config.Log.Level {
		case "debug":
			levelVar.Set(slog.LevelDebug)
		case "warn":
			levelVar.Set(slog.LevelWarn)
		case "error":
			levelVar.Set(slog.LevelError)
		}
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	var tracingCfg config.TracingConfig
	if a.bootstrap.Config != nil {
		tracingCfg = a.bootstrap.Config.Monitoring.Tracing
	}
	if tracingCfg.Enable && tracingCfg.ExportEndpoint != "" {
		serviceName := utils.CoalesceString(tracingCfg.ServiceName, "act-marketplace-api")
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(tracingCfg.ExportEndpoint),
		}
		if tracingCfg.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		tracerOpt, cfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(cfg))
		a.bootstrap.Logger.Info("链路追踪已启用",
			"service_name", serviceName, "endpoint", tracingCfg.ExportEndpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时）
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	return a.bootstrap.Close()
}

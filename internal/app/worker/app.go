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

package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/app"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/handler"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/reconcile"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/config"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/metrics"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/tracing"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/utils"
)

// App Worker 应用：启动时先追赶扫描补齐漏处理任务，再进入实时订阅消费
type App struct {
	bootstrap  *app.Bootstrap
	logger     *log.Logger
	registry   *handler.Registry
	scanner    *reconcile.Scanner
	subscriber *reconcile.Subscriber

	subscriberCancel context.CancelFunc
	metricsServer    *http.Server
	tracerProvider   *sdktrace.TracerProvider
}

// NewApp 创建 Worker 应用
func NewApp(cfg *config.Config) (*App, error) {
	bootstrap, err := app.NewBootstrap(cfg)
	if err != nil {
		return nil, err
	}
	logger := bootstrap.Logger

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	submitter := reconcile.NewSubmitter(
		bootstrap.Gateway,
		cfg.Worker.SubmitAttempts,
		parseDuration(cfg.Worker.SubmitDelay, 0),
		logger,
	)
	processor := reconcile.NewProcessor(
		bootstrap.Gateway, registry, bootstrap.StateStore, submitter,
		cfg.Chain.AgentAddress, logger,
	)
	scanner := reconcile.NewScanner(
		bootstrap.Gateway, bootstrap.StateStore, processor,
		cfg.Chain.AgentAddress, cfg.Chain.DeploymentBlock, logger,
	)
	subscriber := reconcile.NewSubscriber(
		bootstrap.Gateway, processor, cfg.Chain.AgentAddress,
		cfg.Worker.Concurrency, cfg.Worker.QueueSize, logger,
	)

	appObj := &App{
		bootstrap:  bootstrap,
		logger:     logger,
		registry:   registry,
		scanner:    scanner,
		subscriber: subscriber,
	}

	if cfg.Monitoring.Tracing.Enable && cfg.Monitoring.Tracing.ExportEndpoint != "" {
		serviceName := utils.CoalesceString(cfg.Monitoring.Tracing.ServiceName, "act-marketplace-worker")
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链路追踪失败: %w", err)
		}
		appObj.tracerProvider = tp
		logger.Info("链路追踪已启用", "service_name", serviceName)
	}

	return appObj, nil
}

// buildRegistry 按配置装配能力处理器：内置处理器 + 远端委托端点
func buildRegistry(cfg *config.Config, logger *log.Logger) (*handler.Registry, error) {
	registry := handler.NewRegistry()
	names := cfg.Handlers.Builtin
	if len(names) == 0 {
		names = []string{"echo"}
	}
	for _, name := range names {
		h := handler.Builtin(name)
		if h == nil {
			return nil, fmt.Errorf("未知内置处理器 %q", name)
		}
		registry.Register(h)
	}
	for topic, entry := range cfg.Handlers.Delegate {
		registry.Register(handler.NewDelegateHandler(topic, entry.URL, parseDuration(entry.Timeout, 0)))
		logger.Info("注册远端能力端点", "topic", topic, "url", entry.URL)
	}
	logger.Info("能力处理器就绪", "topics", registry.Topics())
	return registry, nil
}

// Start 启动应用：追赶扫描完成后开启实时订阅，二者之间不允许事件空窗
func (a *App) Start() error {
	a.logger.Info("启动 worker 应用")

	if a.bootstrap.Config.Monitoring.Prometheus.Enable {
		a.startMetricsServer(a.bootstrap.Config.Monitoring.Prometheus.Port)
	}

	// 追赶完成后再开启实时订阅；订阅重复投递追赶已处理的任务时由幂等检查吸收
	ctx, cancel := context.WithCancel(context.Background())
	a.subscriberCancel = cancel
	if err := a.scanner.Run(ctx); err != nil {
		cancel()
		return fmt.Errorf("追赶扫描失败: %w", err)
	}
	if err := a.subscriber.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("启动实时订阅失败: %w", err)
	}

	a.logger.Info("worker 应用启动成功")
	return nil
}

// Shutdown 优雅关闭：停止订阅消费、落盘台账、释放存储与追踪器
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 worker 应用")

	if a.subscriberCancel != nil {
		a.subscriberCancel()
	}
	a.subscriber.Wait()

	if err := a.bootstrap.StateStore.Persist(ctx); err != nil {
		a.logger.Error("关闭前台账落盘失败", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("关闭监控服务失败", "error", err)
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Error("关闭链路追踪失败", "error", err)
		}
	}
	if err := a.bootstrap.Close(); err != nil {
		a.logger.Error("关闭台账存储失败", "error", err)
	}

	a.logger.Info("worker 应用关闭成功")
	return nil
}

// startMetricsServer 启动独立的 Prometheus 抓取端点
func (a *App) startMetricsServer(port int) {
	port = utils.DefaultInt(port, 9090)
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if err := metrics.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	a.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("监控服务启动", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("监控服务异常退出", "error", err)
		}
	}()
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/app/worker"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/config"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	application, err := worker.NewApp(cfg)
	if err != nil {
		log.Fatalf("创建 Worker 应用失败: %v", err)
	}

	if err := application.Start(); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("Worker 服务已关闭")
}

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("act-marketplace cli 0.1.0")
	case "health":
		runHealth()
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runExec("./cmd/api")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: actmp server start\n")
			os.Exit(1)
		}
	case "worker":
		if len(args) > 0 && args[0] == "start" {
			runExec("./cmd/worker")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: actmp worker start\n")
			os.Exit(1)
		}
	case "status":
		runStatus()
	case "task":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: actmp task <task_id>\n")
			os.Exit(1)
		}
		runTask(args[0])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: actmp <command> [args]")
	fmt.Println("  version        - 显示版本")
	fmt.Println("  health         - 查询门面健康检查")
	fmt.Println("  config         - 显示配置概要")
	fmt.Println("  server start   - 启动查询门面（go run ./cmd/api）")
	fmt.Println("  worker start   - 启动对账 Worker（go run ./cmd/worker）")
	fmt.Println("  status         - 显示对账进度（水位 / 已处理数 / 落后块数）")
	fmt.Println("  task <task_id> - 查询单个任务的链上记录与本地处理状态")
}

func runConfig() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("chain.gateway_url=%s\n", cfg.Chain.GatewayURL)
	fmt.Printf("chain.contract_address=%s\n", cfg.Chain.ContractAddress)
	fmt.Printf("chain.agent_address=%s\n", cfg.Chain.AgentAddress)
	fmt.Printf("state.type=%s\n", cfg.State.Type)
	fmt.Printf("worker.concurrency=%d\n", cfg.Worker.Concurrency)
}

func runExec(pkgPath string) {
	c := exec.Command("go", "run", pkgPath)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", pkgPath, err)
		os.Exit(1)
	}
}

func runHealth() {
	if err := getHealth(); err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runStatus() {
	status, err := getStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询状态失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(renderStatus(status))
}

func runTask(id string) {
	task, err := getTask(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询任务失败: %v\n", err)
		os.Exit(1)
	}
	for _, key := range []string{"id", "topic", "state", "assigned_agent", "processed"} {
		if v, ok := task[key]; ok {
			fmt.Printf("%s: %v\n", key, v)
		}
	}
}

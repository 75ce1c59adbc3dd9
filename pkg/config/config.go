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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Chain      ChainConfig      `mapstructure:"chain"`
	State      StateConfig      `mapstructure:"state"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Handlers   HandlersConfig   `mapstructure:"handlers"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ChainConfig 账本网关配置（marketplace 合约的读/查/写服务）
type ChainConfig struct {
	GatewayURL      string  `mapstructure:"gateway_url"`      // 网关服务地址，如 http://localhost:8545
	ContractAddress string  `mapstructure:"contract_address"` // marketplace 合约地址
	AgentAddress    string  `mapstructure:"agent_address"`    // 本 agent 地址（事件过滤与校验）
	SigningKey      string  `mapstructure:"signing_key"`      // 提交结果的签名凭证；支持 ${ENV} 展开，或经 secrets 获取
	DeploymentBlock uint64  `mapstructure:"deployment_block"` // 合约部署块高；水位未设置时的扫描起点
	RequestTimeout  string  `mapstructure:"request_timeout"`  // 单次网关请求超时，如 "30s"，空则默认 30s
	RateLimitQPS    float64 `mapstructure:"rate_limit_qps"`   // 网关请求限速（每秒），<=0 不限速
	PollInterval    string  `mapstructure:"poll_interval"`    // 订阅轮询间隔，如 "5s"，空则默认 5s
}

// StateConfig 处理台账持久化配置（水位 + 已处理集合）
type StateConfig struct {
	Type string `mapstructure:"type"` // file | memory | postgres | redis
	Path string `mapstructure:"path"` // type=file 时的快照文件路径
	DSN  string `mapstructure:"dsn"`  // type=postgres 时的连接串
	Addr string `mapstructure:"addr"` // type=redis 时的地址
	DB   int    `mapstructure:"db"`   // type=redis 时的 DB 编号
}

// WorkerConfig Worker 服务配置
type WorkerConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`     // 订阅消费并发数，<=0 时默认 4
	QueueSize      int    `mapstructure:"queue_size"`      // 订阅事件队列长度，<=0 时默认 64
	SubmitAttempts int    `mapstructure:"submit_attempts"` // 提交最大尝试次数（含首次），<=0 时默认 3
	SubmitDelay    string `mapstructure:"submit_delay"`    // 提交失败后的固定等待，如 "10s"，空则默认 10s
}

// HandlersConfig 能力处理器配置
type HandlersConfig struct {
	Builtin  []string                 `mapstructure:"builtin"`  // 启用的内置处理器名列表，如 ["echo"]
	Delegate map[string]DelegateEntry `mapstructure:"delegate"` // topic -> 远端能力端点
}

// DelegateEntry 远端能力端点（payload 经 HTTP 转发）
type DelegateEntry struct {
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"` // 如 "60s"，空则默认 60s
}

// SecretsConfig 签名凭证来源配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // env | vault | memory；空则不启用
	Config   map[string]string `mapstructure:"config"`   // provider 专属配置（vault: address/token/path_prefix）
	Key      string            `mapstructure:"key"`      // 凭证在 secret store 中的 key
}

// APIConfig 查询 API 服务配置
type APIConfig struct {
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量（仅签名凭证等敏感项）
	replaceEnvVars(&config)

	return &config, nil
}

// replaceEnvVars 替换配置中的 ${ENV} 形式环境变量
func replaceEnvVars(config *Config) {
	config.Chain.SigningKey = expandEnv(config.Chain.SigningKey)
	if config.Secrets.Config != nil {
		for k, v := range config.Secrets.Config {
			config.Secrets.Config[k] = expandEnv(v)
		}
	}
}

func expandEnv(value string) string {
	if !strings.HasPrefix(value, "$") {
		return value
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return value
}

// LoadWorkerConfig 加载 Worker 配置（仅 configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}

// LoadAPIConfig 加载 API 配置（仅 configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}

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

package app

import (
	"context"
	"time"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/config"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/errors"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 worker 复用，避免在 cmd 内写装配逻辑
type Bootstrap struct {
	Config     *config.Config
	Logger     *log.Logger
	StateStore state.Store
	Gateway    chain.Gateway
}

// NewBootstrap 根据配置创建 Bootstrap（日志 / 签名凭证 / 台账存储 / 账本网关）
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, errors.Wrap(err, "初始化日志失败")
	}
	if cfg == nil {
		return &Bootstrap{Logger: logger}, nil
	}

	signingKey, err := resolveSigningKey(cfg)
	if err != nil {
		return nil, err
	}

	stateStore, err := state.NewStore(context.Background(), cfg.State, logger)
	if err != nil {
		return nil, errors.Wrap(err, "初始化处理台账失败")
	}

	gateway, err := chain.NewRestGateway(chain.RestConfig{
		GatewayURL:      cfg.Chain.GatewayURL,
		ContractAddress: cfg.Chain.ContractAddress,
		SigningKey:      signingKey,
		RequestTimeout:  parseDuration(cfg.Chain.RequestTimeout, 0),
		RateLimitQPS:    cfg.Chain.RateLimitQPS,
		PollInterval:    parseDuration(cfg.Chain.PollInterval, 0),
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "初始化账本网关失败")
	}

	return &Bootstrap{
		Config:     cfg,
		Logger:     logger,
		StateStore: stateStore,
		Gateway:    gateway,
	}, nil
}

// resolveSigningKey 解析签名凭证：secrets.provider 配置时从 secret store 获取，
// 否则直接取 chain.signing_key（已做 ${ENV} 展开）
func resolveSigningKey(cfg *config.Config) (string, error) {
	if cfg.Secrets.Provider == "" {
		return cfg.Chain.SigningKey, nil
	}
	store, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Config:   cfg.Secrets.Config,
	})
	if err != nil {
		return "", errors.Wrap(err, "初始化 secret store 失败")
	}
	key := cfg.Secrets.Key
	if key == "" {
		key = "signing_key"
	}
	value, err := store.Get(context.Background(), key)
	if err != nil {
		return "", errors.Wrapf(err, "获取签名凭证 %q 失败", key)
	}
	return value, nil
}

// Close 释放 Bootstrap 持有的资源
func (b *Bootstrap) Close() error {
	if b.StateStore != nil {
		return b.StateStore.Close()
	}
	return nil
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

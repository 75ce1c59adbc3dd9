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

package state

import (
	"context"
	"fmt"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/config"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
)

const defaultSnapshotPath = "data/reconcile-state.json"

// NewStore 按配置创建台账实现并加载启动快照；type 为空时默认 file
func NewStore(ctx context.Context, cfg config.StateConfig, logger *log.Logger) (Store, error) {
	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("state: 加载启动快照: %w", err)
	}
	return store, nil
}

func newStore(ctx context.Context, cfg config.StateConfig, logger *log.Logger) (Store, error) {
	switch cfg.Type {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = defaultSnapshotPath
		}
		return NewFileStore(path, logger), nil
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("state: type=postgres 需要 dsn")
		}
		return NewPostgresStore(ctx, cfg.DSN)
	case "redis":
		if cfg.Addr == "" {
			return nil, fmt.Errorf("state: type=redis 需要 addr")
		}
		return NewRedisStore(ctx, cfg.Addr, cfg.DB)
	default:
		return nil, fmt.Errorf("state: 未知存储类型 %q", cfg.Type)
	}
}

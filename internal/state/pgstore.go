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
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore PostgreSQL 实现：水位单行表 + 已处理任务表；内存镜像承担读路径，Persist 在单事务内写回
type pgStore struct {
	mu        sync.RWMutex
	pool      *pgxpool.Pool
	watermark uint64
	processed map[string]struct{}
	dirty     []string // 尚未写回的已处理任务 ID
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS reconcile_watermark (
    id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    last_processed_block BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS reconcile_processed_tasks (
    task_id TEXT PRIMARY KEY,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgresStore 创建基于 PostgreSQL 的台账；dsn 为连接串
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgStore{pool: pool, processed: make(map[string]struct{})}, nil
}

func (s *pgStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var watermark uint64
	err := s.pool.QueryRow(ctx,
		`SELECT last_processed_block FROM reconcile_watermark WHERE id = 1`).Scan(&watermark)
	if err != nil && err != pgx.ErrNoRows {
		return err
	}
	s.watermark = watermark
	rows, err := s.pool.Query(ctx, `SELECT task_id FROM reconcile_processed_tasks`)
	if err != nil {
		return err
	}
	defer rows.Close()
	s.processed = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		s.processed[id] = struct{}{}
	}
	return rows.Err()
}

func (s *pgStore) IsProcessed(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[taskID]
	return ok
}

func (s *pgStore) MarkProcessed(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[taskID]; ok {
		return
	}
	s.processed[taskID] = struct{}{}
	s.dirty = append(s.dirty, taskID)
}

func (s *pgStore) AdvanceWatermark(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block > s.watermark {
		s.watermark = block
	}
}

func (s *pgStore) Watermark() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *pgStore) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed)
}

// Persist 单事务写回：水位 upsert + 新完成任务插入
func (s *pgStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx,
		`INSERT INTO reconcile_watermark (id, last_processed_block) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET last_processed_block = GREATEST(reconcile_watermark.last_processed_block, $1)`,
		s.watermark); err != nil {
		return err
	}
	for _, id := range s.dirty {
		if _, err := tx.Exec(ctx,
			`INSERT INTO reconcile_processed_tasks (task_id) VALUES ($1) ON CONFLICT (task_id) DO NOTHING`,
			id); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.dirty = s.dirty[:0]
	return nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

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
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	redisWatermarkKey = "actmp:reconcile:watermark"
	redisProcessedKey = "actmp:reconcile:processed"
)

// redisStore Redis 实现：watermark 为字符串键，processed 为集合；内存镜像承担读路径
type redisStore struct {
	mu        sync.RWMutex
	client    *redis.Client
	watermark uint64
	processed map[string]struct{}
	dirty     []string
}

// NewRedisStore 创建基于 Redis 的台账
func NewRedisStore(ctx context.Context, addr string, db int) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisStore{client: client, processed: make(map[string]struct{})}, nil
}

func (s *redisStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, err := s.client.Get(ctx, redisWatermarkKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if err == nil {
		if parsed, perr := strconv.ParseUint(val, 10, 64); perr == nil {
			s.watermark = parsed
		}
	}
	ids, err := s.client.SMembers(ctx, redisProcessedKey).Result()
	if err != nil {
		return err
	}
	s.processed = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.processed[id] = struct{}{}
	}
	return nil
}

func (s *redisStore) IsProcessed(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[taskID]
	return ok
}

func (s *redisStore) MarkProcessed(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[taskID]; ok {
		return
	}
	s.processed[taskID] = struct{}{}
	s.dirty = append(s.dirty, taskID)
}

func (s *redisStore) AdvanceWatermark(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block > s.watermark {
		s.watermark = block
	}
}

func (s *redisStore) Watermark() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *redisStore) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed)
}

// Persist pipeline 写回水位与新完成任务
func (s *redisStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisWatermarkKey, strconv.FormatUint(s.watermark, 10), 0)
	if len(s.dirty) > 0 {
		members := make([]interface{}, len(s.dirty))
		for i, id := range s.dirty {
			members[i] = id
		}
		pipe.SAdd(ctx, redisProcessedKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	s.dirty = s.dirty[:0]
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

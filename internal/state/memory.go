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
	"sort"
	"sync"
)

// memoryStore 内存实现：测试与 dev profile 用，Persist 为 no-op
type memoryStore struct {
	mu        sync.RWMutex
	watermark uint64
	processed map[string]struct{}
}

// NewMemoryStore 创建内存台账
func NewMemoryStore() Store {
	return &memoryStore{processed: make(map[string]struct{})}
}

func (s *memoryStore) Load(ctx context.Context) error { return nil }

func (s *memoryStore) IsProcessed(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[taskID]
	return ok
}

func (s *memoryStore) MarkProcessed(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[taskID] = struct{}{}
}

func (s *memoryStore) AdvanceWatermark(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block > s.watermark {
		s.watermark = block
	}
}

func (s *memoryStore) Watermark() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *memoryStore) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed)
}

func (s *memoryStore) Persist(ctx context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }

// snapshotLocked 生成有序快照；调用方需持有读锁
func snapshotLocked(watermark uint64, processed map[string]struct{}) Snapshot {
	ids := make([]string, 0, len(processed))
	for id := range processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Snapshot{LastProcessedBlock: watermark, ProcessedTaskIDs: ids}
}

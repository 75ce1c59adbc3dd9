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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
)

// fileStore JSON 文件实现（默认）：整体快照 + 临时文件原子替换
type fileStore struct {
	mu        sync.RWMutex
	path      string
	watermark uint64
	processed map[string]struct{}
	logger    *log.Logger
}

// NewFileStore 创建文件台账；path 为快照文件路径
func NewFileStore(path string, logger *log.Logger) Store {
	return &fileStore{
		path:      path,
		processed: make(map[string]struct{}),
		logger:    logger,
	}
}

// Load 读取快照文件；文件缺失或损坏时记录日志并从默认值开始，不返回错误
func (s *fileStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("台账快照不存在，从默认值开始", "path", s.path)
			return nil
		}
		s.logger.Warn("读取台账快照失败，从默认值开始", "path", s.path, "error", err)
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("台账快照损坏，从默认值开始", "path", s.path, "error", err)
		return nil
	}
	s.watermark = snap.LastProcessedBlock
	s.processed = make(map[string]struct{}, len(snap.ProcessedTaskIDs))
	for _, id := range snap.ProcessedTaskIDs {
		s.processed[id] = struct{}{}
	}
	s.logger.Info("台账快照已加载", "watermark", s.watermark, "processed", len(s.processed))
	return nil
}

func (s *fileStore) IsProcessed(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[taskID]
	return ok
}

func (s *fileStore) MarkProcessed(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[taskID] = struct{}{}
}

func (s *fileStore) AdvanceWatermark(block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block > s.watermark {
		s.watermark = block
	}
}

func (s *fileStore) Watermark() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

func (s *fileStore) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed)
}

// Persist 整体快照写入临时文件后 rename 原子替换；持锁取快照，避免与并发变更交错出旧值覆盖
func (s *fileStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshotLocked(s.watermark, s.processed)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("state: 序列化快照: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: 创建快照目录: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("state: 创建临时快照: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: 写临时快照: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: 落盘临时快照: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: 替换快照: %w", err)
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
)

func newTestLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return logger
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path, newTestLogger(t))
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load on missing file should not error: %v", err)
	}
	if s.Watermark() != 0 || s.ProcessedCount() != 0 {
		t.Errorf("expected defaults, got watermark=%d processed=%d", s.Watermark(), s.ProcessedCount())
	}
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	s := NewFileStore(path, newTestLogger(t))
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load on corrupt file should not error: %v", err)
	}
	if s.Watermark() != 0 || s.ProcessedCount() != 0 {
		t.Errorf("expected defaults after corrupt load")
	}
}

func TestFileStore_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path, newTestLogger(t))
	s.MarkProcessed("7")
	s.MarkProcessed("9")
	s.AdvanceWatermark(105)
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// 快照为整体覆写的有序 JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.LastProcessedBlock != 105 {
		t.Errorf("LastProcessedBlock = %d, want 105", snap.LastProcessedBlock)
	}
	if len(snap.ProcessedTaskIDs) != 2 || snap.ProcessedTaskIDs[0] != "7" || snap.ProcessedTaskIDs[1] != "9" {
		t.Errorf("ProcessedTaskIDs = %v", snap.ProcessedTaskIDs)
	}

	s2 := NewFileStore(path, newTestLogger(t))
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s2.Watermark() != 105 {
		t.Errorf("reloaded watermark = %d, want 105", s2.Watermark())
	}
	if !s2.IsProcessed("7") || !s2.IsProcessed("9") || s2.IsProcessed("8") {
		t.Errorf("reloaded processed set mismatch")
	}
}

func TestFileStore_WatermarkMonotonic(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"), newTestLogger(t))
	s.AdvanceWatermark(100)
	s.AdvanceWatermark(50)
	if s.Watermark() != 100 {
		t.Errorf("watermark should never decrease, got %d", s.Watermark())
	}
	s.AdvanceWatermark(100)
	if s.Watermark() != 100 {
		t.Errorf("equal block should be a no-op, got %d", s.Watermark())
	}
	s.AdvanceWatermark(101)
	if s.Watermark() != 101 {
		t.Errorf("larger block should advance, got %d", s.Watermark())
	}
}

func TestMemoryStore_Basics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.IsProcessed("1") {
		t.Error("fresh store should have empty processed set")
	}
	s.MarkProcessed("1")
	if !s.IsProcessed("1") {
		t.Error("MarkProcessed should be visible")
	}
	s.AdvanceWatermark(10)
	s.AdvanceWatermark(3)
	if s.Watermark() != 10 {
		t.Errorf("watermark = %d, want 10", s.Watermark())
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
}

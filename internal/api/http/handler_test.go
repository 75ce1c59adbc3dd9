package http

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/api/http/middleware"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
)

// stubGateway serves a fixed task set and height.
type stubGateway struct {
	tasks  map[uint64]chain.TaskRecord
	height uint64
}

func (g *stubGateway) FetchTask(ctx context.Context, taskID uint64) (*chain.TaskRecord, error) {
	task, ok := g.tasks[taskID]
	if !ok {
		return nil, chain.ErrTaskNotFound
	}
	return &task, nil
}

func (g *stubGateway) SubmitResult(ctx context.Context, taskID uint64, result string) (string, error) {
	return "", chain.ErrSubmitRejected
}

func (g *stubGateway) QueryEvents(ctx context.Context, kind chain.EventKind, agent string, fromBlock, toBlock uint64) ([]chain.Event, error) {
	return nil, nil
}

func (g *stubGateway) CurrentHeight(ctx context.Context) (uint64, error) {
	return g.height, nil
}

func (g *stubGateway) Subscribe(ctx context.Context, agent string) (<-chan chain.Event, error) {
	return nil, nil
}

func encodedTopic(s string) string {
	b := make([]byte, 32)
	copy(b, s)
	return "0x" + hex.EncodeToString(b)
}

func buildServerForTest() *server.Hertz {
	gateway := &stubGateway{
		height: 120,
		tasks: map[uint64]chain.TaskRecord{
			5: {
				ID:            5,
				AssignedAgent: "0xAgent",
				Topic:         encodedTopic("echo"),
				State:         chain.TaskAssigned,
			},
		},
	}
	store := state.NewMemoryStore()
	store.AdvanceWatermark(100)
	store.MarkProcessed("7")
	h := NewHandler(gateway, store, []string{"echo", "text_reverse"})
	r := NewRouter(h, middleware.NewMiddleware())
	return r.Build(":0")
}

func TestHealthCheck(t *testing.T) {
	s := buildServerForTest()

	w := ut.PerformRequest(s.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/health status = %d, want 200", got)
	}
	if !bytes.Contains(w.Result().Body(), []byte(`"status":"ok"`)) {
		t.Fatalf("health body missing status field: %s", w.Result().Body())
	}
}

func TestGetTask(t *testing.T) {
	s := buildServerForTest()

	w := ut.PerformRequest(s.Engine, "GET", "/api/tasks/5", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/tasks/5 status = %d, want 200", got)
	}
	body := w.Result().Body()
	for _, want := range []string{`"topic":"echo"`, `"state":"assigned"`, `"processed":false`} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("task body missing %s: %s", want, body)
		}
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := buildServerForTest()

	w := ut.PerformRequest(s.Engine, "GET", "/api/tasks/404", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("GET /api/tasks/404 status = %d, want 404", got)
	}
}

func TestGetTask_InvalidID(t *testing.T) {
	s := buildServerForTest()

	w := ut.PerformRequest(s.Engine, "GET", "/api/tasks/not-a-number", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 400 {
		t.Fatalf("GET /api/tasks/not-a-number status = %d, want 400", got)
	}
}

func TestStatus(t *testing.T) {
	s := buildServerForTest()

	w := ut.PerformRequest(s.Engine, "GET", "/api/status", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/status status = %d, want 200", got)
	}
	body := w.Result().Body()
	for _, want := range []string{`"watermark":100`, `"processed_count":1`, `"chain_height":120`, `"lag_blocks":20`} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("status body missing %s: %s", want, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := buildServerForTest()

	w := ut.PerformRequest(s.Engine, "GET", "/metrics", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /metrics status = %d, want 200", got)
	}
}

package reconcile

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/handler"
)

// fakeGateway scripts ledger behavior for tests: fixed height, task records,
// raw events, and a per-call submit outcome queue.
type fakeGateway struct {
	mu          sync.Mutex
	height      uint64
	tasks       map[uint64]chain.TaskRecord
	events      []chain.Event
	submitErrs  []error // consumed per SubmitResult call; empty means success
	submits     []submittedResult
	fetchCalls  int
	subscribeCh chan chain.Event
}

type submittedResult struct {
	taskID uint64
	result string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{tasks: make(map[uint64]chain.TaskRecord)}
}

func (g *fakeGateway) FetchTask(ctx context.Context, taskID uint64) (*chain.TaskRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCalls++
	task, ok := g.tasks[taskID]
	if !ok {
		return nil, chain.ErrTaskNotFound
	}
	copied := task
	return &copied, nil
}

func (g *fakeGateway) SubmitResult(ctx context.Context, taskID uint64, result string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, submittedResult{taskID: taskID, result: result})
	if len(g.submitErrs) > 0 {
		err := g.submitErrs[0]
		g.submitErrs = g.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "0xtx", nil
}

func (g *fakeGateway) QueryEvents(ctx context.Context, kind chain.EventKind, agent string, fromBlock, toBlock uint64) ([]chain.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []chain.Event
	for _, ev := range g.events {
		if ev.Kind != kind || !chain.SameAddress(ev.Agent, agent) {
			continue
		}
		if ev.BlockHeight < fromBlock || ev.BlockHeight > toBlock {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (g *fakeGateway) CurrentHeight(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.height, nil
}

func (g *fakeGateway) Subscribe(ctx context.Context, agent string) (<-chan chain.Event, error) {
	return g.subscribeCh, nil
}

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submits)
}

func (g *fakeGateway) submitted() []submittedResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]submittedResult, len(g.submits))
	copy(out, g.submits)
	return out
}

// topicHex encodes a readable topic into the fixed-width on-chain form.
func topicHex(s string) string {
	b := make([]byte, 32)
	copy(b, s)
	return "0x" + hex.EncodeToString(b)
}

// stubHandler records payloads it was invoked with.
type stubHandler struct {
	mu       sync.Mutex
	topic    string
	result   interface{}
	err      error
	payloads []string
}

func (h *stubHandler) Topic() string { return h.topic }

func (h *stubHandler) Handle(ctx context.Context, payload string) (interface{}, error) {
	h.mu.Lock()
	h.payloads = append(h.payloads, payload)
	h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	if h.result != nil {
		return h.result, nil
	}
	return payload, nil
}

func (h *stubHandler) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.payloads))
	copy(out, h.payloads)
	return out
}

var _ handler.Handler = (*stubHandler)(nil)
var _ chain.Gateway = (*fakeGateway)(nil)

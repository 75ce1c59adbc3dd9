package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/handler"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/pkg/log"
)

const testAgent = "0xAgent"

func newTestLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)
	return logger
}

type processorFixture struct {
	gateway   *fakeGateway
	registry  *handler.Registry
	store     state.Store
	processor *Processor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	gateway := newFakeGateway()
	registry := handler.NewRegistry()
	store := state.NewMemoryStore()
	logger := newTestLogger(t)
	submitter := NewSubmitter(gateway, 3, time.Millisecond, logger)
	processor := NewProcessor(gateway, registry, store, submitter, testAgent, logger)
	return &processorFixture{
		gateway:   gateway,
		registry:  registry,
		store:     store,
		processor: processor,
	}
}

func assignedEvent(taskID, block uint64) chain.Event {
	return chain.Event{
		TaskID:      taskID,
		Agent:       testAgent,
		BlockHeight: block,
		Kind:        chain.AssignedByClient,
	}
}

func TestProcessor_CompletesAssignedTask(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo"}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("echo"),
		Payload:       "hello",
		State:         chain.TaskAssigned,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeCompleted, outcome)
	require.Equal(t, []string{"hello"}, h.calls())
	require.Equal(t, []submittedResult{{taskID: 7, result: "hello"}}, f.gateway.submitted())
	require.True(t, f.store.IsProcessed("7"))
}

func TestProcessor_Idempotency(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo"}
	f.registry.Register(h)
	f.store.MarkProcessed("7")

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeSkipped, outcome)
	require.Empty(t, h.calls(), "processed task must not reach the handler")
	require.Zero(t, f.gateway.submitCount(), "processed task must not be resubmitted")
	require.Zero(t, f.gateway.fetchCalls, "idempotency check precedes the fetch")
}

func TestProcessor_ValidationGate_WrongAssignee(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo"}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: "0xSomeoneElse",
		Topic:         topicHex("echo"),
		State:         chain.TaskAssigned,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeSkipped, outcome)
	require.Empty(t, h.calls())
	require.Zero(t, f.gateway.submitCount())
	require.False(t, f.store.IsProcessed("7"))
}

func TestProcessor_ValidationGate_WrongState(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo"}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("echo"),
		State:         chain.TaskSubmitted,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeSkipped, outcome)
	require.Empty(t, h.calls())
	require.False(t, f.store.IsProcessed("7"))
}

func TestProcessor_AddressComparisonIsCaseInsensitive(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo"}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: "0xAGENT",
		Topic:         topicHex("echo"),
		Payload:       "x",
		State:         chain.TaskAssigned,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeCompleted, outcome)
}

func TestProcessor_UnknownTopicSkips(t *testing.T) {
	f := newProcessorFixture(t)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("unknown_topic"),
		State:         chain.TaskAssigned,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeSkipped, outcome)
	require.Zero(t, f.gateway.submitCount())
	require.False(t, f.store.IsProcessed("7"), "processed set must be unchanged")
}

func TestProcessor_HandlerFailureLeavesTaskUnprocessed(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo", err: errors.New("boom")}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("echo"),
		State:         chain.TaskAssigned,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeFailed, outcome)
	require.Zero(t, f.gateway.submitCount())
	require.False(t, f.store.IsProcessed("7"))
}

func TestProcessor_SubmissionExhaustionLeavesTaskUnprocessed(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo"}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("echo"),
		Payload:       "x",
		State:         chain.TaskAssigned,
	}
	submitErr := errors.New("gateway down")
	f.gateway.submitErrs = []error{submitErr, submitErr, submitErr}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeFailed, outcome)
	require.Equal(t, 3, f.gateway.submitCount())
	require.False(t, f.store.IsProcessed("7"))
}

func TestProcessor_StructuredResultIsSerialized(t *testing.T) {
	f := newProcessorFixture(t)
	h := &stubHandler{topic: "echo", result: map[string]int{"score": 42}}
	f.registry.Register(h)
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("echo"),
		Payload:       "x",
		State:         chain.TaskAssigned,
	}

	outcome := f.processor.Process(context.Background(), assignedEvent(7, 10))

	require.Equal(t, OutcomeCompleted, outcome)
	submits := f.gateway.submitted()
	require.Len(t, submits, 1)
	require.JSONEq(t, `{"score":42}`, submits[0].result)
}

func TestProcessor_HandlerPanicIsIsolated(t *testing.T) {
	f := newProcessorFixture(t)
	f.registry.Register(panicHandler{})
	f.gateway.tasks[7] = chain.TaskRecord{
		ID:            7,
		AssignedAgent: testAgent,
		Topic:         topicHex("panic"),
		State:         chain.TaskAssigned,
	}

	var outcome Outcome
	require.NotPanics(t, func() {
		outcome = f.processor.Process(context.Background(), assignedEvent(7, 10))
	})
	require.Equal(t, OutcomeFailed, outcome)
	require.False(t, f.store.IsProcessed("7"))
}

func TestNormalizeResult(t *testing.T) {
	out, err := normalizeResult("raw text")
	require.NoError(t, err)
	require.Equal(t, "raw text", out)

	out, err = normalizeResult(map[string]string{"k": "v"})
	require.NoError(t, err)
	require.JSONEq(t, `{"k":"v"}`, out)

	out, err = normalizeResult(nil)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

type panicHandler struct{}

func (panicHandler) Topic() string { return "panic" }

func (panicHandler) Handle(ctx context.Context, payload string) (interface{}, error) {
	panic("handler exploded")
}

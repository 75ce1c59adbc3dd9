package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/chain"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/handler"
	"github.com/ACT-1-The-Prophecy/act-marketplace-module/internal/state"
)

type subscriberFixture struct {
	gateway    *fakeGateway
	store      state.Store
	handler    *stubHandler
	subscriber *Subscriber
}

func newSubscriberFixture(t *testing.T, concurrency int) *subscriberFixture {
	t.Helper()
	gateway := newFakeGateway()
	gateway.subscribeCh = make(chan chain.Event, 16)
	registry := handler.NewRegistry()
	h := &stubHandler{topic: "echo"}
	registry.Register(h)
	store := state.NewMemoryStore()
	logger := newTestLogger(t)
	submitter := NewSubmitter(gateway, 3, time.Millisecond, logger)
	processor := NewProcessor(gateway, registry, store, submitter, testAgent, logger)
	subscriber := NewSubscriber(gateway, processor, testAgent, concurrency, 16, logger)
	return &subscriberFixture{gateway: gateway, store: store, handler: h, subscriber: subscriber}
}

func TestSubscriber_ProcessesLiveEvents(t *testing.T) {
	f := newSubscriberFixture(t, 2)
	for _, id := range []uint64{1, 2, 3} {
		f.gateway.tasks[id] = chain.TaskRecord{
			ID:            id,
			AssignedAgent: testAgent,
			Topic:         topicHex("echo"),
			Payload:       "live",
			State:         chain.TaskAssigned,
		}
	}

	require.NoError(t, f.subscriber.Start(context.Background()))
	for _, id := range []uint64{1, 2, 3} {
		f.gateway.subscribeCh <- chain.Event{
			TaskID: id, Agent: testAgent, BlockHeight: 200 + id, LogIndex: 0,
			Kind: chain.AssignedByClient,
		}
	}
	close(f.gateway.subscribeCh)
	f.subscriber.Wait()

	require.Len(t, f.handler.calls(), 3)
	require.Equal(t, 3, f.gateway.submitCount())
	for _, id := range []string{"1", "2", "3"} {
		require.True(t, f.store.IsProcessed(id))
	}
}

func TestSubscriber_DuplicateDeliveryIsAbsorbed(t *testing.T) {
	f := newSubscriberFixture(t, 1)
	f.gateway.tasks[5] = chain.TaskRecord{
		ID:            5,
		AssignedAgent: testAgent,
		Topic:         topicHex("echo"),
		Payload:       "dup",
		State:         chain.TaskAssigned,
	}

	require.NoError(t, f.subscriber.Start(context.Background()))
	ev := chain.Event{TaskID: 5, Agent: testAgent, BlockHeight: 300, LogIndex: 0, Kind: chain.AssignedByClient}
	f.gateway.subscribeCh <- ev
	f.gateway.subscribeCh <- ev
	close(f.gateway.subscribeCh)
	f.subscriber.Wait()

	require.Len(t, f.handler.calls(), 1, "duplicate delivery must not re-handle the task")
	require.Equal(t, 1, f.gateway.submitCount())
}

func TestSubscriber_StopsOnContextCancel(t *testing.T) {
	f := newSubscriberFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.subscriber.Start(ctx))
	cancel()
	// Forwarder only observes cancellation while blocked on a send or receive;
	// a trailing event unblocks it.
	f.gateway.subscribeCh <- chain.Event{TaskID: 1, Agent: testAgent, BlockHeight: 1, Kind: chain.AssignedByClient}
	close(f.gateway.subscribeCh)

	done := make(chan struct{})
	go func() {
		f.subscriber.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not shut down after context cancellation")
	}
}

package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
)

func newTestBus(opts ...Option) *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func newEvent(t domain.EventType) domain.Event {
	return domain.Event{Type: t, Timestamp: time.Now()}
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventGroupCreated, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventGroupCreated {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventGroupCreated))
	bus.Publish(context.Background(), newEvent(domain.EventGroupDeleted))
	bus.Close() // drain
	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventGroupCreated))
	bus.Publish(context.Background(), newEvent(domain.EventScheduleFired))
	bus.Close()

	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus(WithSyncDelivery())

	var typed, all atomic.Int32
	unsub := bus.Subscribe(domain.EventCommandAdded, func(_ context.Context, _ domain.Event) {
		typed.Add(1)
	})
	unsubAll := bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		all.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCommandAdded))
	unsub()
	unsubAll()
	bus.Publish(context.Background(), newEvent(domain.EventCommandAdded))
	bus.Close()

	assert.Equal(t, int32(1), typed.Load())
	assert.Equal(t, int32(1), all.Load())
}

func TestSyncDeliveryPreservesOrder(t *testing.T) {
	bus := newTestBus(WithSyncDelivery())

	var seen []domain.EventType
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		seen = append(seen, e.Type)
	})

	bus.Publish(context.Background(), newEvent(domain.EventGroupCreated))
	bus.Publish(context.Background(), newEvent(domain.EventCommandAdded))
	bus.Publish(context.Background(), newEvent(domain.EventGroupDeleted))

	assert.Equal(t, []domain.EventType{
		domain.EventGroupCreated, domain.EventCommandAdded, domain.EventGroupDeleted,
	}, seen)
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventExecutionRecorded, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventExecutionRecorded))
		}()
	}
	wg.Wait()
	bus.Close()

	if got.Load() != 100 {
		t.Fatalf("expected 100, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	for _, opts := range [][]Option{nil, {WithSyncDelivery()}} {
		bus := newTestBus(opts...)

		var got atomic.Int32
		bus.Subscribe(domain.EventScheduleFired, func(_ context.Context, _ domain.Event) {
			panic("boom")
		})
		bus.Subscribe(domain.EventScheduleFired, func(_ context.Context, _ domain.Event) {
			got.Add(1)
		})

		bus.Publish(context.Background(), newEvent(domain.EventScheduleFired))
		bus.Close()

		if got.Load() != 1 {
			t.Fatalf("expected 1 (second handler), got %d", got.Load())
		}
	}
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventLedgerCleared, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventLedgerCleared))
	bus.Close() // should block until the handler finishes

	if got.Load() != 1 {
		t.Fatalf("expected handler to have run, got %d", got.Load())
	}

	bus.Publish(context.Background(), newEvent(domain.EventLedgerCleared))
	time.Sleep(20 * time.Millisecond)
	if got.Load() != 1 {
		t.Fatalf("expected no delivery after close, got %d", got.Load())
	}
	bus.Close()
}

func TestEmitEncodesPayload(t *testing.T) {
	bus := newTestBus(WithSyncDelivery())

	var got domain.ScheduleFired
	bus.Subscribe(domain.EventScheduleFired, func(_ context.Context, e domain.Event) {
		require.NoError(t, e.Decode(&got))
	})

	Emit(context.Background(), bus, domain.EventScheduleFired, domain.ScheduleFired{
		ScheduleID: "s1", Summary: domain.SummaryMixed, ExecutionCount: 2,
	})
	assert.Equal(t, "s1", got.ScheduleID)
	assert.Equal(t, domain.SummaryMixed, got.Summary)
	assert.Equal(t, uint(2), got.ExecutionCount)
}

func TestEmitNilBus(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, domain.EventGroupCreated, nil)
	})
}

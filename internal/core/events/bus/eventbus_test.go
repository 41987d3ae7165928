package bus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got any
	_, err := b.Subscribe("test.event", func(e Event) error {
		got = e.Data()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("test.event", "tester", 123)))
	assert.Equal(t, 123, got)
}

func TestSubscribeNilHandler(t *testing.T) {
	_, err := New().Subscribe("x", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestDeliveryOrderFollowsSubscriptionOrder(t *testing.T) {
	b := New()
	var order []int
	for i := 0; i < 5; i++ {
		_, err := b.Subscribe("ev", func(Event) error {
			order = append(order, i)
			return nil
		})
		require.NoError(t, err)
	}
	require.NoError(t, b.Publish(NewEvent("ev", "src", nil)))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestHandlerErrorsAreJoined(t *testing.T) {
	b := New()
	errA := errors.New("a")
	errB := errors.New("b")
	_, _ = b.Subscribe("x", func(Event) error { return errA })
	_, _ = b.Subscribe("x", func(Event) error { return nil })
	_, _ = b.Subscribe("x", func(Event) error { return errB })

	err := b.Publish(NewEvent("x", "src", nil))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	sub, err := b.Subscribe("e", func(Event) error { count++; return nil })
	require.NoError(t, err)

	_ = b.Publish(NewEvent("e", "s", nil))
	require.NoError(t, b.Unsubscribe(sub))
	require.NoError(t, sub.Cancel())
	_ = b.Publish(NewEvent("e", "s", nil))

	assert.Equal(t, 1, count)
	assert.False(t, sub.IsActive())
	assert.Equal(t, 0, b.Subscribers("e"))
	assert.NoError(t, b.Unsubscribe(nil))
}

func TestCancelDuringDelivery(t *testing.T) {
	b := New()
	var second Subscription
	calls := 0
	_, _ = b.Subscribe("e", func(Event) error {
		_ = second.Cancel()
		return nil
	})
	second, _ = b.Subscribe("e", func(Event) error { calls++; return nil })

	require.NoError(t, b.Publish(NewEvent("e", "s", nil)))
	assert.Equal(t, 0, calls)
}

func TestPublishWithFilters(t *testing.T) {
	b := New()
	count := 0
	_, _ = b.Subscribe("e", func(Event) error { count++; return nil })

	reject := func(Event) bool { return false }
	accept := func(Event) bool { return true }

	require.NoError(t, b.PublishWithFilters(NewEvent("e", "s", nil), accept, reject))
	assert.Equal(t, 0, count)
	require.NoError(t, b.PublishWithFilters(NewEvent("e", "s", nil), accept))
	assert.Equal(t, 1, count)
}

func TestConcurrentSubscribePublish(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = b.Subscribe("e", func(Event) error { return nil })
		}()
		go func() {
			defer wg.Done()
			_ = b.Publish(NewEvent("e", "s", nil))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, b.Subscribers("e"))
}

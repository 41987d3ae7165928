package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/conduit/internal/core/observability/log"
)

// mockHandle behaves like a socket whose Close emits "close" synchronously.
type mockHandle struct {
	Emitter

	mu         sync.Mutex
	registered []string
	sent       [][]byte
	sendFn     func(payload []byte, done func(error))
	closeCalls int
}

func newMockHandle() *mockHandle {
	return &mockHandle{}
}

func (h *mockHandle) On(event string, handler EventHandler) {
	h.mu.Lock()
	h.registered = append(h.registered, event)
	h.mu.Unlock()
	h.Emitter.On(event, handler)
}

func (h *mockHandle) Send(payload []byte, done func(error)) {
	h.mu.Lock()
	h.sent = append(h.sent, payload)
	fn := h.sendFn
	h.mu.Unlock()
	if fn == nil {
		done(nil)
		return
	}
	fn(payload, done)
}

func (h *mockHandle) Close() error {
	h.mu.Lock()
	h.closeCalls++
	h.mu.Unlock()
	h.Emit(EventClose, nil)
	return nil
}

func newTestTransport(t *testing.T) (*Transport, *mockHandle) {
	t.Helper()
	h := newMockHandle()
	return New("42", h, false, WithLogger(log.Nop())), h
}

func waitResult(t *testing.T, r *Result) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := r.Wait(ctx)
	require.NoError(t, err, "send result should resolve")
	return ok
}

func TestTransport_Constructor(t *testing.T) {
	tr, h := newTestTransport(t)

	assert.False(t, tr.IsClosed())
	assert.Equal(t, "42", tr.ID())
	assert.False(t, tr.IsEncrypted())
	assert.ElementsMatch(t, []string{EventMessage, EventError, EventClose}, h.registered)
	for _, ev := range []string{EventMessage, EventError, EventClose} {
		assert.Equal(t, 1, h.ListenerCount(ev), ev)
	}
	assert.Equal(t, "transport(42)", tr.String())
}

func TestTransport_EncryptedFlagIsMetadata(t *testing.T) {
	tr := New("secure", newMockHandle(), true, WithLogger(log.Nop()))
	assert.True(t, tr.IsEncrypted())
	assert.True(t, waitResult(t, tr.Send([]byte("x"))))
}

func TestTransport_Message(t *testing.T) {
	tr, h := newTestTransport(t)
	payload := `{"foo":42}`

	var result []byte
	tr.OnMessage().Subscribe(func(msg []byte) { result = msg })
	h.Emit(EventMessage, payload)

	assert.Equal(t, payload, string(result))
}

func TestTransport_MessageBytesUnmodified(t *testing.T) {
	tr, h := newTestTransport(t)
	payload := []byte{0x00, 0xff, 0x10}

	var first, second []byte
	tr.OnMessage().Subscribe(func(msg []byte) { first = msg })
	tr.OnMessage().Subscribe(func(msg []byte) { second = msg })
	h.Emit(EventMessage, payload)

	assert.Equal(t, payload, first)
	assert.Equal(t, payload, second)
}

func TestTransport_MessageOrderAndLateSubscriber(t *testing.T) {
	tr, h := newTestTransport(t)

	var early []string
	tr.OnMessage().Subscribe(func(msg []byte) { early = append(early, string(msg)) })
	h.Emit(EventMessage, "a")

	var late []string
	tr.OnMessage().Subscribe(func(msg []byte) { late = append(late, string(msg)) })
	h.Emit(EventMessage, "b")
	h.Emit(EventMessage, "c")

	assert.Equal(t, []string{"a", "b", "c"}, early)
	assert.Equal(t, []string{"b", "c"}, late)
}

func TestTransport_MessageUnsupportedPayloadDropped(t *testing.T) {
	tr, h := newTestTransport(t)
	called := false
	tr.OnMessage().Subscribe(func([]byte) { called = true })
	h.Emit(EventMessage, 42)
	assert.False(t, called)
}

func TestTransport_CancelSubscription(t *testing.T) {
	tr, h := newTestTransport(t)
	count := 0
	sub := tr.OnMessage().Subscribe(func([]byte) { count++ })
	assert.Equal(t, 1, tr.OnMessage().Subscribers())

	h.Emit(EventMessage, "a")
	sub.Cancel()
	h.Emit(EventMessage, "b")

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, tr.OnMessage().Subscribers())
}

func TestTransport_SendSuccess(t *testing.T) {
	tr, h := newTestTransport(t)
	h.sendFn = func(_ []byte, done func(error)) { done(nil) }
	data := []byte(`{"foo":42}`)

	assert.True(t, waitResult(t, tr.Send(data)))
	require.Len(t, h.sent, 1)
	assert.Equal(t, data, h.sent[0])
}

func TestTransport_SendError(t *testing.T) {
	tr, h := newTestTransport(t)
	h.sendFn = func(_ []byte, done func(error)) { done(errors.New("write failed")) }
	data := []byte(`{"foo":42}`)

	assert.False(t, waitResult(t, tr.Send(data)))
	require.Len(t, h.sent, 1)
	assert.Equal(t, data, h.sent[0])
}

func TestTransport_SendAsyncCompletion(t *testing.T) {
	tr, h := newTestTransport(t)
	release := make(chan struct{})
	h.sendFn = func(_ []byte, done func(error)) {
		go func() {
			<-release
			done(nil)
		}()
	}

	r := tr.Send([]byte("x"))
	_, isResolved := r.Value()
	assert.False(t, isResolved, "result must stay pending until the handle completes")

	close(release)
	assert.True(t, waitResult(t, r))
}

func TestTransport_SendCallbackFiresTwice(t *testing.T) {
	tr, h := newTestTransport(t)
	h.sendFn = func(_ []byte, done func(error)) {
		done(nil)
		done(errors.New("late failure"))
	}

	r := tr.Send([]byte("x"))
	ok, isResolved := r.Value()
	assert.True(t, isResolved)
	assert.True(t, ok, "first completion wins")
}

func TestTransport_SendAfterClose(t *testing.T) {
	tr, h := newTestTransport(t)
	require.NoError(t, tr.Close())

	r := tr.Send([]byte("x"))
	ok, isResolved := r.Value()
	assert.True(t, isResolved)
	assert.False(t, ok)
	assert.Empty(t, h.sent, "closed transport must not reach the handle")
}

func TestTransport_InFlightSendSurvivesClose(t *testing.T) {
	tr, h := newTestTransport(t)
	var pending func(error)
	h.sendFn = func(_ []byte, done func(error)) { pending = done }

	r := tr.Send([]byte("x"))
	require.NoError(t, tr.Close())
	pending(nil)

	assert.True(t, waitResult(t, r))
}

func TestTransport_CloseEvent(t *testing.T) {
	tr, h := newTestTransport(t)
	closed := 0
	tr.OnClose().Subscribe(func(struct{}) { closed++ })

	h.Emit(EventClose, nil)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, 1, closed)

	assert.NotPanics(t, func() { h.Emit(EventClose, nil) })
	assert.Equal(t, 1, closed, "close event should be published exactly once")
}

func TestTransport_ManualClose(t *testing.T) {
	tr, h := newTestTransport(t)
	closed := 0
	tr.OnClose().Subscribe(func(struct{}) { closed++ })

	require.NoError(t, tr.Close())
	assert.True(t, tr.IsClosed())
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, h.closeCalls)

	assert.NotPanics(t, func() { h.Emit(EventClose, nil) })
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, h.closeCalls, "second Close must not touch the handle")
}

func TestTransport_CloseAfterRemoteClose(t *testing.T) {
	tr, h := newTestTransport(t)
	h.Emit(EventClose, nil)

	require.NoError(t, tr.Close())
	assert.Equal(t, 0, h.closeCalls)
}

func TestTransport_LateCloseSubscriber(t *testing.T) {
	tr, _ := newTestTransport(t)
	require.NoError(t, tr.Close())

	closed := 0
	sub := tr.OnClose().Subscribe(func(struct{}) { closed++ })
	assert.Equal(t, 1, closed)
	assert.NotPanics(t, sub.Cancel)
}

func TestTransport_CloseHandleError(t *testing.T) {
	h := &failingCloseHandle{err: errors.New("already gone")}
	tr := New("x", h, false, WithLogger(log.Nop()))
	closed := 0
	tr.OnClose().Subscribe(func(struct{}) { closed++ })

	err := tr.Close()
	assert.ErrorIs(t, err, h.err)
	assert.True(t, tr.IsClosed())
	assert.Equal(t, 1, closed)
}

func TestTransport_ConcurrentCloseTriggers(t *testing.T) {
	for i := 0; i < 50; i++ {
		tr, h := newTestTransport(t)
		var closed atomic.Int32
		tr.OnClose().Subscribe(func(struct{}) { closed.Add(1) })

		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = tr.Close()
			}()
			go func() {
				defer wg.Done()
				h.Emit(EventClose, nil)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), closed.Load())
		assert.True(t, tr.IsClosed())
	}
}

func TestTransport_ConcurrentSubscribeAndClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		tr, _ := newTestTransport(t)
		var counts [16]atomic.Int32

		var wg sync.WaitGroup
		for j := range counts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tr.OnClose().Subscribe(func(struct{}) { counts[j].Add(1) })
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.Close()
		}()
		wg.Wait()

		for j := range counts {
			assert.Equal(t, int32(1), counts[j].Load(), "subscriber %d", j)
		}
	}
}

func TestTransport_NoMessagesAfterClose(t *testing.T) {
	tr, h := newTestTransport(t)
	var events []string
	tr.OnMessage().Subscribe(func(msg []byte) { events = append(events, "msg:"+string(msg)) })
	tr.OnError().Subscribe(func(error) { events = append(events, "err") })
	tr.OnClose().Subscribe(func(struct{}) { events = append(events, "close") })

	h.Emit(EventMessage, "a")
	h.Emit(EventClose, nil)
	h.Emit(EventMessage, "b")
	h.Emit(EventError, errors.New("late"))

	assert.Equal(t, []string{"msg:a", "close"}, events)
}

func TestTransport_CloseFromMessageSubscriber(t *testing.T) {
	tr, h := newTestTransport(t)
	var second []string
	tr.OnMessage().Subscribe(func([]byte) { _ = tr.Close() })
	tr.OnMessage().Subscribe(func(msg []byte) { second = append(second, string(msg)) })

	h.Emit(EventMessage, "bye")

	assert.True(t, tr.IsClosed())
	assert.Empty(t, second, "delivery stops once the gate is set")
}

func TestTransport_Error(t *testing.T) {
	tr, h := newTestTransport(t)
	var got error
	expected := errors.New("error message")
	tr.OnError().Subscribe(func(err error) { got = err })

	h.Emit(EventError, expected)

	assert.Same(t, expected, got)
	assert.False(t, tr.IsClosed(), "errors do not close the transport")
}

func TestTransport_ErrorNonErrorValue(t *testing.T) {
	tr, h := newTestTransport(t)
	var got error
	tr.OnError().Subscribe(func(err error) { got = err })

	h.Emit(EventError, "boom")

	require.Error(t, got)
	assert.Equal(t, "boom", got.Error())
}

type failingCloseHandle struct {
	Emitter
	err error
}

func (h *failingCloseHandle) Send(_ []byte, done func(error)) { done(nil) }

func (h *failingCloseHandle) Close() error { return h.err }

// loopbackHandle echoes every sent payload back as a message on the sending
// goroutine, the way an in-process pipe would.
type loopbackHandle struct {
	Emitter
}

func (h *loopbackHandle) Send(payload []byte, done func(error)) {
	done(nil)
	h.Emit(EventMessage, "re:"+string(payload))
}

func (h *loopbackHandle) Close() error {
	h.Emit(EventClose, nil)
	return nil
}

func TestTransport_NestedMessageFromSubscriber(t *testing.T) {
	h := &loopbackHandle{}
	tr := New("loop", h, false, WithLogger(log.Nop()))

	var got []string
	tr.OnMessage().Subscribe(func(p []byte) {
		got = append(got, string(p))
		if len(got) == 1 {
			tr.Send(p)
		}
	})

	finished := make(chan struct{})
	go func() {
		h.Emit(EventMessage, "hello")
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("nested message delivery blocked")
	}
	assert.Equal(t, []string{"hello", "re:hello"}, got)
}

func TestTransport_NilErrorDropped(t *testing.T) {
	tr, h := newTestTransport(t)
	calls := 0
	tr.OnError().Subscribe(func(error) { calls++ })

	h.Emit(EventError, nil)

	assert.Zero(t, calls)
	assert.False(t, tr.IsClosed())
}

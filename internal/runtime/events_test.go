package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerListOrderAndRemoval(t *testing.T) {
	var l listenerList[func() string]
	l.add(func() string { return "a" })
	removeB := l.add(func() string { return "b" })
	l.add(func() string { return "c" })

	names := func() []string {
		var out []string
		for _, fn := range l.snapshot() {
			out = append(out, fn())
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, names())

	removeB()
	removeB()
	assert.Equal(t, []string{"a", "c"}, names())
}

func TestEventsFanOutInRegistrationOrder(t *testing.T) {
	h := newHarness(t)

	var order []string
	h.client.OnConnected(func() { order = append(order, "first") })
	remove := h.client.OnConnected(func() { order = append(order, "removed") })
	h.client.OnConnected(func() { order = append(order, "second") })
	remove()

	h.connect()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestNilListenersAreIgnored(t *testing.T) {
	h := newHarness(t)

	for _, remove := range []func(){
		h.client.OnConnected(nil),
		h.client.OnDisconnected(nil),
		h.client.OnError(nil),
		h.client.OnMessage(nil),
		h.client.OnMalformed(nil),
	} {
		require.NotNil(t, remove)
		remove()
	}
	h.connect()
}

func TestListenerSnapshotAtEmission(t *testing.T) {
	h := newHarness(t)
	h.prepare = func(fm *fakeMessenger) { fm.connectErr = errors.New("refused") }

	var got []string
	h.client.OnError(func(error) {
		got = append(got, "registered")
		h.client.OnError(func(error) { got = append(got, "late") })
	})

	require.NoError(t, h.client.Connect(nil))
	h.drain()
	assert.Equal(t, []string{"registered"}, got)

	require.NoError(t, h.client.Connect(nil))
	h.drain()
	assert.Equal(t, []string{"registered", "registered", "late"}, got)
}

func TestDeliveryWithoutListenerIsTraced(t *testing.T) {
	h := newHarness(t)
	fm := h.connect()
	h.subscribe("kittens", "", nil)

	fm.publish("kittens", []byte("nobody"), ContentTypeText)
	h.drain()

	entry, ok := h.logs.find("trace", "No listener for delivery")
	require.True(t, ok)
	assert.Equal(t, deliveryKindMessage, entry.fields["kind"])
}

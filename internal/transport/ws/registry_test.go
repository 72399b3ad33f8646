package ws

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultiDevice(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()

	phone := NewClient(r, nil, nil, user)
	laptop := NewClient(r, nil, nil, user)
	r.Register(phone)
	r.Register(laptop)

	assert.True(t, r.IsOnline(user))
	assert.Len(t, r.ConnectionsFor(user), 2)

	r.Unregister(phone.id)
	assert.True(t, r.IsOnline(user))
	assert.Len(t, r.ConnectionsFor(user), 1)

	r.Unregister(laptop.id)
	assert.False(t, r.IsOnline(user))
	assert.Empty(t, r.ConnectionsFor(user))
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()

	var remainings []int
	r.OnDisconnect(func(_ uuid.UUID, remaining int) {
		remainings = append(remainings, remaining)
	})

	c := NewClient(r, nil, nil, user)
	r.Register(c)

	r.Unregister(c.id)
	r.Unregister(c.id)
	r.Unregister(uuid.New())

	// The hook fires once; repeats and unknown ids are no-ops.
	assert.Equal(t, []int{0}, remainings)
}

func TestRegistryHooks(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()

	var mu sync.Mutex
	var connects int
	var remainings []int
	r.OnConnect(func(id uuid.UUID) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, user, id)
		connects++
	})
	r.OnDisconnect(func(id uuid.UUID, remaining int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, user, id)
		remainings = append(remainings, remaining)
	})

	a := NewClient(r, nil, nil, user)
	b := NewClient(r, nil, nil, user)
	r.Register(a)
	r.Register(b)
	r.Unregister(a.id)
	r.Unregister(b.id)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, connects)
	// remaining counts let listeners act only on the last disconnect.
	assert.Equal(t, []int{1, 0}, remainings)
}

func TestRegistryPushFansOutToAllDevices(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()
	other := uuid.New()

	phone := NewClient(r, nil, nil, user)
	laptop := NewClient(r, nil, nil, user)
	bystander := NewClient(r, nil, nil, other)
	r.Register(phone)
	r.Register(laptop)
	r.Register(bystander)

	r.pushEvent(user, EventPong, nil)

	for _, c := range []*Client{phone, laptop} {
		select {
		case data := <-c.send:
			var evt Event
			require.NoError(t, json.Unmarshal(data, &evt))
			assert.Equal(t, EventPong, evt.Type)
		default:
			t.Fatalf("conn %s got no frame", c.id)
		}
	}
	select {
	case <-bystander.send:
		t.Fatal("event leaked to another user")
	default:
	}
}

func TestRegistryPushToOfflineUser(t *testing.T) {
	r := NewRegistry()

	// Pushing to a user with no connections must not panic or block.
	r.pushEvent(uuid.New(), EventPong, nil)
}

func TestClientEnqueueDropsWhenFull(t *testing.T) {
	c := NewClient(NewRegistry(), nil, nil, uuid.New())

	for i := 0; i < sendBufSize+10; i++ {
		c.enqueue([]byte("{}"))
	}
	// A slow client loses frames instead of stalling the sender.
	assert.Len(t, c.send, sendBufSize)
}

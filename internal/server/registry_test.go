package server

import (
	"testing"

	"github.com/npezzotti/go-santa/internal/stats"
	"github.com/npezzotti/go-santa/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("Incr", stats.ActiveConnections).Return().Twice()
	su.On("Decr", stats.ActiveConnections).Return().Twice()

	r := NewRegistry(testutil.TestLogger(t), su)
	a, b := &recordingSink{}, &recordingSink{}
	r.Register(1, "a", 1, a)
	r.Register(1, "b", 1, b)
	assert.Equal(t, 2, r.Count(1))
	assert.Len(t, r.Sinks(1), 2)

	assert.True(t, r.Unregister(1, "a"), "expected registered connection to be removed")
	assert.True(t, a.isClosed(), "expected unregistered sink to be closed")
	assert.False(t, r.Unregister(1, "a"), "expected second unregister to be a no-op")
	assert.False(t, r.Unregister(2, "a"), "expected unknown room to be a no-op")

	assert.True(t, r.Unregister(1, "b"))
	assert.NotContains(t, r.rooms, 1, "expected empty room to be pruned")
	assert.Equal(t, 0, r.Count(1))
}

func TestRegistry_SinksIsACopy(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), newTestStats())
	r.Register(1, "a", 1, &recordingSink{})

	sinks := r.Sinks(1)
	delete(sinks, "a")
	assert.Equal(t, 1, r.Count(1), "expected registry to be unaffected by changes to the copy")
}

func TestRegistry_CloseRoom(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), newTestStats())
	a, b, other := &recordingSink{}, &recordingSink{}, &recordingSink{}
	r.Register(1, "a", 1, a)
	r.Register(1, "b", 1, b)
	r.Register(2, "c", 1, other)

	assert.Equal(t, 2, r.CloseRoom(1))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.False(t, other.isClosed(), "expected other rooms to be untouched")
	assert.Equal(t, 0, r.Count(1))
	assert.Equal(t, 0, r.CloseRoom(1), "expected closing an empty room to be a no-op")
}

func TestRegistry_CloseUser(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), newTestStats())
	bobTab, bobPhone, alice, bobElsewhere := &recordingSink{}, &recordingSink{}, &recordingSink{}, &recordingSink{}
	r.Register(1, "tab", 2, bobTab)
	r.Register(1, "phone", 2, bobPhone)
	r.Register(1, "alice", 1, alice)
	r.Register(3, "elsewhere", 2, bobElsewhere)

	assert.Equal(t, 2, r.CloseUser(1, 2))
	assert.True(t, bobTab.isClosed())
	assert.True(t, bobPhone.isClosed())
	assert.False(t, alice.isClosed(), "expected other users to keep their connections")
	assert.False(t, bobElsewhere.isClosed(), "expected the user's other rooms to be untouched")
	assert.Equal(t, 1, r.Count(1))
	assert.Equal(t, 0, r.CloseUser(1, 2), "expected a second close to be a no-op")

	assert.Equal(t, 1, r.CloseUser(3, 2))
	assert.NotContains(t, r.rooms, 3, "expected empty room to be pruned")
}

func TestRegistry_Shutdown(t *testing.T) {
	r := NewRegistry(testutil.TestLogger(t), newTestStats())
	a, b := &recordingSink{}, &recordingSink{}
	r.Register(1, "a", 1, a)
	r.Register(2, "b", 1, b)

	r.Shutdown()
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Empty(t, r.rooms)
}

package websocket

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/metrics"
)

func newTestHub() (*Hub, *metrics.Metrics) {
	appMetrics := metrics.New(prometheus.NewRegistry())

	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), appMetrics), appMetrics
}

func isClosed(conn *connection) bool {
	select {
	case <-conn.done:
		return true
	default:
		return false
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, appMetrics := newTestHub()

	// Given: two members of one session and an outsider
	first := newConnection(nil, 4)
	second := newConnection(nil, 4)
	outsider := newConnection(nil, 4)

	for _, conn := range []*connection{first, second, outsider} {
		hub.register(conn)
	}

	require.True(t, hub.Subscribe("abc", "e1", first.id, entity.PlayerX))
	require.True(t, hub.Subscribe("abc", "e1", second.id, entity.PlayerO))

	// When: broadcasting a draw to the session
	hub.Broadcast("abc", entity.NewDrawEvent())

	// Then: only members receive it, without a payload
	assert.JSONEq(t, `{"action":"draw"}`, string(<-first.send))
	assert.JSONEq(t, `{"action":"draw"}`, string(<-second.send))
	assert.Empty(t, outsider.send)
	assert.InDelta(t, 3, testutil.ToFloat64(appMetrics.ConnectionsActive), 0)
}

func TestHub_Unicast(t *testing.T) {
	hub, _ := newTestHub()

	conn := newConnection(nil, 4)
	hub.register(conn)

	hub.Unicast(conn.id, entity.NewPlayerSymbolEvent(entity.PlayerO))
	hub.Unicast("gone", entity.NewPlayerSymbolEvent(entity.PlayerX))

	require.Len(t, conn.send, 1)
	assert.JSONEq(t, `{"action":"playerSymbol","payload":{"marker":"O"}}`, string(<-conn.send))
}

func TestHub_SlowConsumerIsDropped(t *testing.T) {
	hub, appMetrics := newTestHub()

	// Given: a member whose queue holds a single message
	slow := newConnection(nil, 1)
	hub.register(slow)
	hub.Subscribe("abc", "e1", slow.id, entity.PlayerX)

	// When: two events are broadcast before it reads
	hub.Broadcast("abc", entity.NewDrawEvent())
	hub.Broadcast("abc", entity.NewDrawEvent())

	// Then: the connection is closed
	assert.True(t, isClosed(slow))
	assert.InDelta(t, 1, testutil.ToFloat64(appMetrics.ConnectionsDropped), 0)
}

func TestHub_Unregister(t *testing.T) {
	hub, appMetrics := newTestHub()

	conn := newConnection(nil, 1)
	hub.register(conn)
	hub.Subscribe("abc", "e1", conn.id, entity.PlayerO)

	// When: the connection goes away twice
	first := hub.unregister(conn)
	second := hub.unregister(conn)

	// Then: the seat is handed back once, the group is gone and the gauge is back to zero
	assert.Equal(t, membership{SessionID: "abc", Epoch: "e1", Marker: entity.PlayerO}, first)
	assert.False(t, second.joined())
	assert.Empty(t, hub.members("abc"))
	assert.InDelta(t, 0, testutil.ToFloat64(appMetrics.ConnectionsActive), 0)

	// And: subscribing an unknown connection is refused
	assert.False(t, hub.Subscribe("abc", "e1", conn.id, entity.PlayerX))
	assert.Empty(t, hub.members("abc"))
}

func TestHub_CloseGroup(t *testing.T) {
	t.Run("Members are told and detached", func(t *testing.T) {
		hub, _ := newTestHub()

		// Given: two members of an epoch
		x := newConnection(nil, 4)
		o := newConnection(nil, 4)
		hub.register(x)
		hub.register(o)
		hub.Subscribe("abc", "e1", x.id, entity.PlayerX)
		hub.Subscribe("abc", "e1", o.id, entity.PlayerO)

		// When: the epoch is closed
		hub.CloseGroup("abc", "e1", entity.NewErrorEvent("session expired"))

		// Then: both hear about it, lose their seat and no longer get broadcasts
		for _, conn := range []*connection{x, o} {
			assert.JSONEq(t, `{"action":"error","payload":{"message":"session expired"}}`, string(<-conn.send))
			assert.False(t, hub.seatOf(conn.id).joined())
		}

		assert.Empty(t, hub.members("abc"))

		hub.Broadcast("abc", entity.NewDrawEvent())
		assert.Empty(t, x.send)
		assert.False(t, isClosed(x))
	})

	t.Run("Another epoch is left alone", func(t *testing.T) {
		hub, _ := newTestHub()

		conn := newConnection(nil, 4)
		hub.register(conn)
		hub.Subscribe("abc", "e2", conn.id, entity.PlayerX)

		// When: an older epoch is closed
		hub.CloseGroup("abc", "e1", entity.NewErrorEvent("session expired"))

		// Then: the current members keep their seat
		assert.Empty(t, conn.send)
		assert.Len(t, hub.members("abc"), 1)
		assert.True(t, hub.seatOf(conn.id).joined())
	})
}

func TestHub_SubscribeReplacesStaleEpoch(t *testing.T) {
	hub, _ := newTestHub()

	// Given: a member of an epoch that was dropped by the store
	stale := newConnection(nil, 4)
	hub.register(stale)
	hub.Subscribe("abc", "e1", stale.id, entity.PlayerX)

	// When: a newcomer joins the recreated session
	newcomer := newConnection(nil, 4)
	hub.register(newcomer)
	require.True(t, hub.Subscribe("abc", "e2", newcomer.id, entity.PlayerX))

	// Then: the group holds the newcomer only and the stale member lost its seat
	assert.Equal(t, []string{newcomer.id}, hub.members("abc"))
	assert.False(t, hub.seatOf(stale.id).joined())

	hub.Broadcast("abc", entity.NewDrawEvent())
	assert.Empty(t, stale.send)
	assert.Len(t, newcomer.send, 1)

	// And: the stale member leaving does not touch the new group
	assert.False(t, hub.unregister(stale).joined())
	assert.Len(t, hub.members("abc"), 1)
}

package websocket

import (
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/metrics"
)

// membership - the seat a connection holds. The zero value means not joined.
type membership struct {
	SessionID string
	Epoch     string
	Marker    entity.Mark
}

func (that membership) joined() bool {
	return that.SessionID != ""
}

// group - connections of one session epoch.
type group struct {
	epoch   string
	members map[string]*connection
}

// Hub - registry of open connections and of the session groups they joined.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	conns  map[string]*connection
	groups map[string]*group
}

func NewHub(logger *slog.Logger, appMetrics *metrics.Metrics) *Hub {
	return &Hub{
		logger:  logger.With("component", "hub"),
		metrics: appMetrics,

		conns:  make(map[string]*connection),
		groups: make(map[string]*group),
	}
}

func (that *Hub) register(conn *connection) {
	that.mu.Lock()
	that.conns[conn.id] = conn
	that.mu.Unlock()

	that.metrics.ConnectionsActive.Inc()
}

// unregister - drops the connection and its group membership and returns the seat it held.
// Other members are not notified.
func (that *Hub) unregister(conn *connection) membership {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.conns[conn.id]; !ok {
		return membership{}
	}

	delete(that.conns, conn.id)

	member := conn.member
	that.detach(conn)

	that.metrics.ConnectionsActive.Dec()

	return member
}

// detach - clears the connection's seat and removes it from its group. Caller holds mu.
func (that *Hub) detach(conn *connection) {
	if !conn.member.joined() {
		return
	}

	if g, ok := that.groups[conn.member.SessionID]; ok && g.epoch == conn.member.Epoch {
		delete(g.members, conn.id)

		if len(g.members) == 0 {
			delete(that.groups, conn.member.SessionID)
		}
	}

	conn.member = membership{}
}

// Subscribe - adds the connection to the broadcast group of the session epoch.
// Members of an older epoch of the same session are detached first.
// Reports false when the connection is gone.
func (that *Hub) Subscribe(sessionID, epoch, connID string, mark entity.Mark) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	conn, ok := that.conns[connID]
	if !ok {
		return false
	}

	g, ok := that.groups[sessionID]
	if ok && g.epoch != epoch {
		for _, stale := range g.members {
			stale.member = membership{}
		}

		that.logger.Info("replaced stale group", "session_id", sessionID, "members", len(g.members))

		ok = false
	}

	if !ok {
		g = &group{epoch: epoch, members: make(map[string]*connection)}
		that.groups[sessionID] = g
	}

	g.members[connID] = conn
	conn.member = membership{SessionID: sessionID, Epoch: epoch, Marker: mark}

	return true
}

// CloseGroup - sends event to the members of the session epoch, then detaches them all.
// A group of another epoch is left alone.
func (that *Hub) CloseGroup(sessionID, epoch string, event entity.Event) {
	log := that.logger.With("method", "CloseGroup", "session_id", sessionID)

	that.mu.Lock()

	g, ok := that.groups[sessionID]
	if !ok || g.epoch != epoch {
		that.mu.Unlock()
		return
	}

	delete(that.groups, sessionID)

	members := make([]*connection, 0, len(g.members))
	for _, conn := range g.members {
		conn.member = membership{}
		members = append(members, conn)
	}

	that.mu.Unlock()

	data, err := encodeEvent(event)
	if err != nil {
		log.Error("failed to encode event", "error", err)
		return
	}

	for _, conn := range members {
		that.deliver(conn, data)
	}

	log.Debug("group closed", "members", len(members))
}

// seatOf - the seat the connection holds, if any.
func (that *Hub) seatOf(connID string) membership {
	that.mu.RLock()
	defer that.mu.RUnlock()

	conn, ok := that.conns[connID]
	if !ok {
		return membership{}
	}

	return conn.member
}

func (that *Hub) Unicast(connID string, event entity.Event) {
	log := that.logger.With("method", "Unicast", "conn_id", connID, "action", event.Action)

	data, err := encodeEvent(event)
	if err != nil {
		log.Error("failed to encode event", "error", err)
		return
	}

	that.mu.RLock()
	conn, ok := that.conns[connID]
	that.mu.RUnlock()

	if !ok {
		log.Debug("connection is gone")
		return
	}

	that.deliver(conn, data)
}

func (that *Hub) Broadcast(sessionID string, event entity.Event) {
	log := that.logger.With("method", "Broadcast", "session_id", sessionID, "action", event.Action)

	data, err := encodeEvent(event)
	if err != nil {
		log.Error("failed to encode event", "error", err)
		return
	}

	that.mu.RLock()
	var members []*connection
	if g, ok := that.groups[sessionID]; ok {
		members = make([]*connection, 0, len(g.members))
		for _, conn := range g.members {
			members = append(members, conn)
		}
	}
	that.mu.RUnlock()

	for _, conn := range members {
		that.deliver(conn, data)
	}
}

// deliver - never blocks; a connection that cannot keep up is closed.
func (that *Hub) deliver(conn *connection, data []byte) {
	if conn.enqueue(data) {
		return
	}

	that.logger.Warn("send queue is full, dropping connection", "conn_id", conn.id)
	that.metrics.ConnectionsDropped.Inc()
	conn.close()
}

// members - ids of the connections subscribed to the session.
func (that *Hub) members(sessionID string) []string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	g, ok := that.groups[sessionID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(g.members))
	for id := range g.members {
		ids = append(ids, id)
	}

	return ids
}

// closeAll - closes every connection, used on shutdown.
func (that *Hub) closeAll() {
	that.mu.RLock()
	conns := make([]*connection, 0, len(that.conns))
	for _, conn := range that.conns {
		conns = append(conns, conn)
	}
	that.mu.RUnlock()

	for _, conn := range conns {
		conn.close()
	}
}

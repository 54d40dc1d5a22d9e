package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannel = "agrilink:chat:events"

// Hub tracks live connections and fans events out to conversation rooms,
// individual users, or everyone. With a Redis client it publishes through
// Pub/Sub so every instance delivers to its own connections; with a nil
// client it delivers locally, which keeps the single-instance stream
// ordered without a broker.
type Hub struct {
	// userID -> connections; one user may hold several tabs/devices
	clients map[uuid.UUID]map[*Client]bool
	// conversationID -> subscribed connections
	rooms map[uuid.UUID]map[*Client]bool
	mu    sync.RWMutex

	register   chan *Client
	unregister chan *Client

	rdb *redis.Client

	// invoked off the hub goroutine when a user's first connection arrives
	// or last connection drops
	onStatusChange func(userID uuid.UUID, online bool)

	logger *zap.Logger
}

func NewHub(rdb *redis.Client, onStatusChange func(userID uuid.UUID, online bool), logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[uuid.UUID]map[*Client]bool),
		rooms:          make(map[uuid.UUID]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		rdb:            rdb,
		onStatusChange: onStatusChange,
		logger:         logger,
	}
}

// Run drives the register/unregister loop until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register queues a client for registration with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	first := false
	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = make(map[*Client]bool)
		first = true
	}
	h.clients[client.UserID][client] = true
	h.mu.Unlock()

	if first {
		if h.onStatusChange != nil {
			go h.onStatusChange(client.UserID, true)
		}
		h.Broadcast(model.NewWSEvent(model.WSEventUserOnline, model.PresenceEvent{
			UserID:   client.UserID,
			IsOnline: true,
		}))
	}
	h.logger.Debug("client connected", zap.String("user_id", client.UserID.String()))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	last := false
	if clients, ok := h.clients[client.UserID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
			last = true
		}
	}
	for roomID := range client.rooms {
		h.dropFromRoom(roomID, client)
	}
	h.mu.Unlock()

	if last {
		if h.onStatusChange != nil {
			go h.onStatusChange(client.UserID, false)
		}
		h.Broadcast(model.NewWSEvent(model.WSEventUserOffline, model.PresenceEvent{
			UserID:   client.UserID,
			IsOnline: false,
		}))
	}
	h.logger.Debug("client disconnected", zap.String("user_id", client.UserID.String()))
}

// JoinRoom subscribes a connection to a conversation's event stream.
// Membership must be verified by the caller before joining.
func (h *Hub) JoinRoom(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]bool)
	}
	h.rooms[conversationID][client] = true
	client.rooms[conversationID] = true
}

// LeaveRoom unsubscribes a connection from a conversation's event stream.
func (h *Hub) LeaveRoom(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropFromRoom(conversationID, client)
	delete(client.rooms, conversationID)
}

// dropFromRoom removes the client and collects the empty room. Caller holds mu.
func (h *Hub) dropFromRoom(conversationID uuid.UUID, client *Client) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// BroadcastToRoom delivers an event to every connection subscribed to the
// conversation. exclude skips one user's connections (typing echoes).
func (h *Hub) BroadcastToRoom(conversationID uuid.UUID, event *model.OutEvent, exclude uuid.UUID) {
	h.publish(&fanoutEnvelope{RoomID: conversationID, ExcludeUserID: exclude, Event: event})
}

// PushToUser delivers an event to all of a user's connections, wherever
// they are attached.
func (h *Hub) PushToUser(userID uuid.UUID, event *model.OutEvent) {
	h.publish(&fanoutEnvelope{TargetUserID: userID, Event: event})
}

// Broadcast delivers an event to every connection. Used for advisory
// presence; listeners treat it as a hint, not authority.
func (h *Hub) Broadcast(event *model.OutEvent) {
	h.publish(&fanoutEnvelope{Event: event})
}

// SendToClient delivers an event to a single connection only. Error events
// go through here so they never reach other participants.
func (h *Hub) SendToClient(client *Client, event *model.OutEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// IsUserOnline reports whether a user has a connection on this instance.
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUserIDs returns users connected to this instance.
func (h *Hub) OnlineUserIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ========== fan-out ==========

// fanoutEnvelope routes an event across instances: a target user, a room,
// or (neither set) a global broadcast.
type fanoutEnvelope struct {
	TargetUserID  uuid.UUID       `json:"target_user_id,omitempty"`
	RoomID        uuid.UUID       `json:"room_id,omitempty"`
	ExcludeUserID uuid.UUID       `json:"exclude_user_id,omitempty"`
	Event         *model.OutEvent `json:"event"`
}

func (h *Hub) publish(env *fanoutEnvelope) {
	if h.rdb == nil {
		h.deliver(env)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("envelope marshal failed", zap.Error(err))
		return
	}
	if err := h.rdb.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		h.logger.Error("redis publish failed", zap.Error(err))
		// Broker down: deliver to local connections so this instance's
		// users are not silently cut off.
		h.deliver(env)
	}
}

// deliver routes an envelope to this instance's connections.
func (h *Hub) deliver(env *fanoutEnvelope) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		h.logger.Error("event marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch {
	case env.TargetUserID != uuid.Nil:
		for client := range h.clients[env.TargetUserID] {
			h.write(client, data)
		}
	case env.RoomID != uuid.Nil:
		for client := range h.rooms[env.RoomID] {
			if env.ExcludeUserID != uuid.Nil && client.UserID == env.ExcludeUserID {
				continue
			}
			h.write(client, data)
		}
	default:
		for _, clients := range h.clients {
			for client := range clients {
				h.write(client, data)
			}
		}
	}
}

// write enqueues without blocking; a full buffer drops the frame rather
// than stalling the hub. The read deadline will reap a dead peer.
func (h *Hub) write(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.Warn("send buffer full, dropping frame",
			zap.String("user_id", client.UserID.String()))
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	h.logger.Info("redis pub/sub subscriber started", zap.String("channel", redisChannel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn("bad pub/sub payload", zap.Error(err))
				continue
			}
			h.deliver(&env)
		}
	}
}

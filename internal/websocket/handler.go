package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chatdesk-backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler bridges redis pub/sub and websocket rooms. Each tenant has one
// room; every operator console connected to it receives the tenant's
// handoff lifecycle events.
type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	log         *logger.Logger
}

func NewHandler(h *Hub, redisClient *redis.Client) *Handler {
	return &Handler{
		hub:         h,
		redisClient: redisClient,
		log:         logger.Global(),
	}
}

func (h *Handler) subscribeToRoomChannel(roomID string) {
	if _, exists := h.hub.room(roomID); !exists {
		h.log.Warn("room not found for subscription", zap.String("room_id", roomID))
		return
	}

	h.log.Debug("subscribing to redis channel", zap.String("room_id", roomID))
	subscriber := h.redisClient.Subscribe(context.Background(), roomID)
	defer subscriber.Close()

	ch := subscriber.Channel()
	for msg := range ch {
		h.hub.Broadcast <- &WSMessage{
			Content:   msg.Payload,
			RoomID:    roomID,
			Timestamp: time.Now().Unix(),
		}
	}
	h.log.Debug("unsubscribed from redis channel", zap.String("room_id", roomID))
}

// CreateRoom registers a tenant room and starts its redis subscription.
func (h *Handler) CreateRoom(id string) {
	room := &Room{
		Id:      id,
		Clients: make(map[string]*WSClient),
	}

	added, count := h.hub.addRoom(room)
	if !added {
		return
	}
	setRooms(count)

	go h.subscribeToRoomChannel(id)
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomId, clientId string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if conn == nil {
		http.Error(w, "Error conn", http.StatusBadRequest)
		return
	}

	cl := &WSClient{
		Conn:     conn,
		Message:  make(chan *WSMessage, 10),
		ID:       clientId,
		RoomID:   roomId,
		done:     make(chan struct{}),
		isClosed: false,
	}

	h.hub.Register <- cl

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms := make([]RoomRes, 0)

	for _, id := range h.hub.roomIDs() {
		rooms = append(rooms, RoomRes{
			ID: id,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(rooms)
}

func (h *Handler) SubscribeToRedisChannels() {
	for _, id := range h.hub.roomIDs() {
		go h.subscribeToRoomChannel(id)
	}
}

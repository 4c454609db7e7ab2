package websocket

import "sync"

// Hub owns the room table. rooms is shared between the Run loop and the
// HTTP goroutines that create and list rooms, so every access goes
// through the mutex. Client maps inside a room are only touched by Run.
type Hub struct {
	mu         sync.Mutex
	rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *WSMessage
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *WSMessage),
	}
}

func (h *Hub) room(id string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[id]
	return room, ok
}

// addRoom registers the room unless one with the same id exists. It
// reports whether the room was added, plus the room count either way.
func (h *Hub) addRoom(room *Room) (bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.rooms[room.Id]; exists {
		return false, len(h.rooms)
	}
	h.rooms[room.Id] = room
	return true, len(h.rooms)
}

func (h *Hub) roomIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			room, ok := h.room(client.RoomID)
			if !ok {
				// Handle the case where the room does not exist
				// For example, create a new room or log an error
				// In this example, we simply log and ignore the client registration
				continue
			}
			room.Clients[client.ID] = client
			incConnections()

		case client := <-h.Unregister:
			room, ok := h.room(client.RoomID)
			if !ok {
				// Handle the case where the room does not exist
				// Just log a message and ignore the client unregistration
				continue
			}
			if _, ok := room.Clients[client.ID]; ok {
				delete(room.Clients, client.ID)
				close(client.Message)
				decConnections()
			}

		case message := <-h.Broadcast:
			room, ok := h.room(message.RoomID)
			if !ok {
				// Handle the case where the room does not exist
				// Just log a message and ignore the broadcast
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- message:
					delivered++
				default:
					close(client.Message)
					delete(room.Clients, client.ID)
					decConnections()
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}

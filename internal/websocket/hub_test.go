package websocket

import (
	"fmt"
	"sync"
	"testing"
)

func TestHubRoomTableConcurrentAccess(t *testing.T) {
	hub := NewHub()

	const workers = 8
	const roomsPerWorker = 20
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < roomsPerWorker; i++ {
				id := fmt.Sprintf("tenant-%d", i)
				hub.addRoom(&Room{Id: id, Clients: make(map[string]*WSClient)})
				if _, ok := hub.room(id); !ok {
					t.Errorf("room %s missing right after add", id)
				}
				hub.roomIDs()
			}
		}(w)
	}
	wg.Wait()

	if got := len(hub.roomIDs()); got != roomsPerWorker {
		t.Fatalf("expected %d rooms, got %d", roomsPerWorker, got)
	}
}

func TestHubAddRoomIsIdempotent(t *testing.T) {
	hub := NewHub()

	added, count := hub.addRoom(&Room{Id: "tenant-1", Clients: make(map[string]*WSClient)})
	if !added || count != 1 {
		t.Fatalf("first add: added=%v count=%d", added, count)
	}
	added, count = hub.addRoom(&Room{Id: "tenant-1", Clients: make(map[string]*WSClient)})
	if added || count != 1 {
		t.Fatalf("repeat add must keep the existing room: added=%v count=%d", added, count)
	}
}

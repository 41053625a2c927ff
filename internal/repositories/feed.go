package repositories

import (
	"sync"

	"github.com/desertthunder/crossplay/internal/models"
)

// Feed fans committed room states out to in-process subscribers.
type Feed struct {
	mu     sync.RWMutex
	next   int
	byRoom map[string]map[int]func(models.RoomState)
}

// NewFeed creates an empty [Feed].
func NewFeed() *Feed {
	return &Feed{byRoom: make(map[string]map[int]func(models.RoomState))}
}

// Subscribe registers fn for roomID. The returned cancel func is safe to call more than once.
func (f *Feed) Subscribe(roomID string, fn func(models.RoomState)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	if f.byRoom[roomID] == nil {
		f.byRoom[roomID] = make(map[int]func(models.RoomState))
	}
	f.byRoom[roomID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.byRoom[roomID], id)
			if len(f.byRoom[roomID]) == 0 {
				delete(f.byRoom, roomID)
			}
		})
	}
}

// Publish delivers room to every subscriber of room.ID. Callbacks run outside the lock.
func (f *Feed) Publish(room models.RoomState) {
	f.mu.RLock()
	fns := make([]func(models.RoomState), 0, len(f.byRoom[room.ID]))
	for _, fn := range f.byRoom[room.ID] {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(room)
	}
}

// Count returns the number of live subscriptions to roomID.
func (f *Feed) Count(roomID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.byRoom[roomID])
}

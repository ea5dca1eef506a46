package http

import (
	"context"
	"sync"

	"trivia-service/internal/domain"
)

// Feed fans notifications out to per-chat subscribers. A slow subscriber loses its oldest
// pending notification rather than holding up the engine.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int64]map[int]chan domain.Notification
	buffer int
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 16
	}
	return &Feed{subs: make(map[int64]map[int]chan domain.Notification), buffer: buffer}
}

// Subscribe returns notifications addressed to chatID until cancel is called.
func (f *Feed) Subscribe(chatID int64) (<-chan domain.Notification, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	ch := make(chan domain.Notification, f.buffer)
	if f.subs[chatID] == nil {
		f.subs[chatID] = make(map[int]chan domain.Notification)
	}
	f.subs[chatID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[chatID], id)
			if len(f.subs[chatID]) == 0 {
				delete(f.subs, chatID)
			}
			close(ch)
		})
	}
}

func (f *Feed) Notify(_ context.Context, n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[n.ChatID] {
		select {
		case ch <- n:
			continue
		default:
		}
		// drop the oldest and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribers reports how many subscribers chatID has.
func (f *Feed) Subscribers(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[chatID])
}

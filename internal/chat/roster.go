// Package chat keeps the room-list projection: every room the user belongs
// to, ordered by recency, with unread counts that track which rooms are
// currently open on screen.
package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medihub/medihub-go/internal/api"
	"github.com/medihub/medihub-go/internal/domain"
)

type Roster struct {
	api    *api.Client
	logger *slog.Logger

	mu    sync.Mutex
	rooms []*domain.ChatRoom // recency order, most recent first
	open  map[uint64]struct{}

	changed chan struct{}
}

func NewRoster(apiClient *api.Client, logger *slog.Logger) *Roster {
	return &Roster{
		api:     apiClient,
		logger:  logger,
		open:    make(map[uint64]struct{}),
		changed: make(chan struct{}, 1),
	}
}

// Changed signals (coalesced) whenever the projection mutates. Consumers read
// a fresh snapshot via Rooms.
func (r *Roster) Changed() <-chan struct{} { return r.changed }

// SetRooms replaces the whole projection, typically right after connect.
func (r *Roster) SetRooms(rooms []domain.ChatRoom) {
	r.mu.Lock()
	r.rooms = make([]*domain.ChatRoom, 0, len(rooms))
	for i := range rooms {
		room := rooms[i]
		r.rooms = append(r.rooms, &room)
	}
	r.sortLocked()
	r.mu.Unlock()
	r.notify()
}

// Rooms returns a snapshot in recency order.
func (r *Roster) Rooms() []domain.ChatRoom {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatRoom, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room)
	}
	return out
}

// AddRoom fetches the room detail and adds it to the membership list and the
// open set. Used when the user opens a room reference that is not yet listed.
func (r *Roster) AddRoom(ctx context.Context, roomSeq uint64) error {
	room, err := r.api.GetRoom(ctx, roomSeq)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.findLocked(roomSeq) == nil {
		r.rooms = append(r.rooms, room)
		r.sortLocked()
	}
	r.open[roomSeq] = struct{}{}
	r.mu.Unlock()
	r.notify()
	return nil
}

// RemoveRoom drops a room from the membership list and the open set.
func (r *Roster) RemoveRoom(roomSeq uint64) {
	r.mu.Lock()
	kept := r.rooms[:0]
	for _, room := range r.rooms {
		if room.RoomSeq != roomSeq {
			kept = append(kept, room)
		}
	}
	r.rooms = kept
	delete(r.open, roomSeq)
	r.mu.Unlock()
	r.notify()
}

// UpdateLastMessage applies an incoming message to the projection: preview
// and timestamp always update; the unread count grows only while the room is
// not open; the list is re-sorted when the new timestamp would outrank the
// current head.
func (r *Roster) UpdateLastMessage(roomSeq uint64, message string, createdAt time.Time) {
	r.mu.Lock()
	room := r.findLocked(roomSeq)
	if room == nil {
		r.mu.Unlock()
		r.logger.Warn("message for unknown room dropped", "room", roomSeq)
		return
	}
	room.LastMessage = message
	room.LastMessageAt = createdAt
	if _, opened := r.open[roomSeq]; !opened {
		room.UnreadCount++
	}
	if room == r.rooms[0] || !createdAt.Before(r.rooms[0].LastMessageAt) {
		r.sortLocked()
	}
	r.mu.Unlock()
	r.notify()
}

// UpdateRoomUsers merges refreshed room data into the projection, typically
// the participant list after an invite or a leave. Unread count and recency
// order stay untouched; unknown rooms are ignored.
func (r *Roster) UpdateRoomUsers(update domain.ChatRoom) {
	r.mu.Lock()
	room := r.findLocked(update.RoomSeq)
	if room == nil {
		r.mu.Unlock()
		r.logger.Warn("room update for unknown room dropped", "room", update.RoomSeq)
		return
	}
	room.Participants = update.Participants
	if update.Name != "" {
		room.Name = update.Name
	}
	r.mu.Unlock()
	r.notify()
}

// OpenRoom marks a room as displayed: unread resets to zero and the backend
// is told about the visit. The local reset stands even if the visit call
// fails.
func (r *Roster) OpenRoom(ctx context.Context, room domain.ChatRoom) {
	r.mu.Lock()
	r.open[room.RoomSeq] = struct{}{}
	if existing := r.findLocked(room.RoomSeq); existing != nil {
		existing.UnreadCount = 0
	}
	r.mu.Unlock()
	r.notify()

	if err := r.api.Visit(ctx, room.RoomSeq); err != nil {
		r.logger.Warn("visit update failed", "room", room.RoomSeq, "error", err)
	}
}

// CloseRoom removes a room from the open set and records the visit
// best-effort.
func (r *Roster) CloseRoom(ctx context.Context, roomSeq uint64) {
	r.mu.Lock()
	delete(r.open, roomSeq)
	r.mu.Unlock()
	r.notify()

	if err := r.api.Visit(ctx, roomSeq); err != nil {
		r.logger.Warn("visit update failed", "room", roomSeq, "error", err)
	}
}

// IsOpen reports whether the room is currently displayed.
func (r *Roster) IsOpen(roomSeq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.open[roomSeq]
	return ok
}

func (r *Roster) findLocked(roomSeq uint64) *domain.ChatRoom {
	for _, room := range r.rooms {
		if room.RoomSeq == roomSeq {
			return room
		}
	}
	return nil
}

func (r *Roster) sortLocked() {
	sort.SliceStable(r.rooms, func(i, j int) bool {
		return r.rooms[i].LastMessageAt.After(r.rooms[j].LastMessageAt)
	})
}

func (r *Roster) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

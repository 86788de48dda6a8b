package chat

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medihub/medihub-go/internal/api"
	"github.com/medihub/medihub-go/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRosterForTest(t *testing.T, handler http.Handler) (*Roster, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRoster(api.New(srv.URL, srv.Client()), testLogger()), srv
}

func seedRooms(base time.Time) []domain.ChatRoom {
	return []domain.ChatRoom{
		{RoomSeq: 1, Name: "oncall", LastMessageAt: base.Add(-3 * time.Hour)},
		{RoomSeq: 2, Name: "ward-3", LastMessageAt: base.Add(-1 * time.Hour)},
		{RoomSeq: 3, Name: "surgery", LastMessageAt: base.Add(-2 * time.Hour)},
	}
}

func TestSetRoomsSortsByRecency(t *testing.T) {
	r, _ := newRosterForTest(t, http.NewServeMux())
	r.SetRooms(seedRooms(time.Now()))

	rooms := r.Rooms()
	if len(rooms) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(rooms))
	}
	if rooms[0].RoomSeq != 2 || rooms[1].RoomSeq != 3 || rooms[2].RoomSeq != 1 {
		t.Fatalf("wrong order: %d %d %d", rooms[0].RoomSeq, rooms[1].RoomSeq, rooms[2].RoomSeq)
	}
}

func TestUpdateLastMessageIncrementsUnreadAndPromotes(t *testing.T) {
	r, _ := newRosterForTest(t, http.NewServeMux())
	now := time.Now()
	r.SetRooms(seedRooms(now))

	r.UpdateLastMessage(1, "code blue", now)

	rooms := r.Rooms()
	if rooms[0].RoomSeq != 1 {
		t.Fatalf("room 1 should be promoted to head, got %d", rooms[0].RoomSeq)
	}
	if rooms[0].UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", rooms[0].UnreadCount)
	}
	if rooms[0].LastMessage != "code blue" {
		t.Fatalf("preview not updated: %q", rooms[0].LastMessage)
	}

	r.UpdateLastMessage(1, "ack", now.Add(time.Minute))
	if got := r.Rooms()[0].UnreadCount; got != 2 {
		t.Fatalf("expected unread 2, got %d", got)
	}
}

func TestUpdateLastMessageOpenRoomStaysRead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /chatroom/{seq}/visit", func(w http.ResponseWriter, _ *http.Request) {})
	r, _ := newRosterForTest(t, mux)
	now := time.Now()
	r.SetRooms(seedRooms(now))

	r.OpenRoom(context.Background(), domain.ChatRoom{RoomSeq: 2})
	r.UpdateLastMessage(2, "hello", now)

	for _, room := range r.Rooms() {
		if room.RoomSeq == 2 && room.UnreadCount != 0 {
			t.Fatalf("open room accumulated unread %d", room.UnreadCount)
		}
	}
}

func TestOpenRoomResetsUnreadEvenWhenVisitFails(t *testing.T) {
	var visits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /chatroom/{seq}/visit", func(w http.ResponseWriter, _ *http.Request) {
		visits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	r, _ := newRosterForTest(t, mux)
	now := time.Now()
	r.SetRooms(seedRooms(now))

	r.UpdateLastMessage(3, "seen you?", now)
	r.UpdateLastMessage(3, "hello?", now.Add(time.Second))

	r.OpenRoom(context.Background(), domain.ChatRoom{RoomSeq: 3})

	if visits.Load() != 1 {
		t.Fatal("expected a visit attempt")
	}
	for _, room := range r.Rooms() {
		if room.RoomSeq == 3 && room.UnreadCount != 0 {
			t.Fatalf("unread not reset on failed visit: %d", room.UnreadCount)
		}
	}
	if !r.IsOpen(3) {
		t.Fatal("room should be marked open despite visit failure")
	}
}

func TestCloseRoomResumesUnreadCounting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /chatroom/{seq}/visit", func(w http.ResponseWriter, _ *http.Request) {})
	r, _ := newRosterForTest(t, mux)
	now := time.Now()
	r.SetRooms(seedRooms(now))
	ctx := context.Background()

	r.OpenRoom(ctx, domain.ChatRoom{RoomSeq: 1})
	r.CloseRoom(ctx, 1)
	r.UpdateLastMessage(1, "after close", now)

	for _, room := range r.Rooms() {
		if room.RoomSeq == 1 && room.UnreadCount != 1 {
			t.Fatalf("expected unread 1 after close, got %d", room.UnreadCount)
		}
	}
}

func TestAddRoomFetchesDetailOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chatroom/{seq}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"chatroomSeq":9,"chatroomName":"consult","lastMessageTime":"2026-08-20T09:00:00Z"}}`))
	})
	r, _ := newRosterForTest(t, mux)
	r.SetRooms(seedRooms(time.Now()))
	ctx := context.Background()

	if err := r.AddRoom(ctx, 9); err != nil {
		t.Fatalf("add room: %v", err)
	}
	if err := r.AddRoom(ctx, 9); err != nil {
		t.Fatalf("re-add room: %v", err)
	}

	count := 0
	for _, room := range r.Rooms() {
		if room.RoomSeq == 9 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one membership entry for room 9, got %d", count)
	}
	if !r.IsOpen(9) {
		t.Fatal("added room should be open")
	}
}

func TestRemoveRoom(t *testing.T) {
	r, _ := newRosterForTest(t, http.NewServeMux())
	r.SetRooms(seedRooms(time.Now()))

	r.RemoveRoom(2)
	for _, room := range r.Rooms() {
		if room.RoomSeq == 2 {
			t.Fatal("room 2 should be gone")
		}
	}
	if len(r.Rooms()) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(r.Rooms()))
	}
}

func TestUpdateRoomUsersMergesParticipants(t *testing.T) {
	r, _ := newRosterForTest(t, http.NewServeMux())
	now := time.Now()
	rooms := seedRooms(now)
	rooms[1].Participants = []string{"kim", "lee"}
	r.SetRooms(rooms)
	r.UpdateLastMessage(2, "welcome", now)

	r.UpdateRoomUsers(domain.ChatRoom{RoomSeq: 2, Participants: []string{"kim", "lee", "park"}})

	got := r.Rooms()[0]
	if got.RoomSeq != 2 {
		t.Fatalf("recency order disturbed, head is %d", got.RoomSeq)
	}
	if len(got.Participants) != 3 || got.Participants[2] != "park" {
		t.Fatalf("participants not merged: %v", got.Participants)
	}
	if got.UnreadCount != 1 {
		t.Fatalf("unread count disturbed by room update: %d", got.UnreadCount)
	}
	if got.Name != "ward-3" {
		t.Fatalf("empty name in update must not blank the room: %q", got.Name)
	}

	// Unknown rooms are dropped, not appended.
	r.UpdateRoomUsers(domain.ChatRoom{RoomSeq: 77, Participants: []string{"x"}})
	if len(r.Rooms()) != 3 {
		t.Fatal("update for unknown room must not grow the projection")
	}
}

func TestChangedSignalCoalesces(t *testing.T) {
	r, _ := newRosterForTest(t, http.NewServeMux())
	now := time.Now()
	r.SetRooms(seedRooms(now))
	r.UpdateLastMessage(1, "a", now)
	r.UpdateLastMessage(1, "b", now.Add(time.Second))

	select {
	case <-r.Changed():
	default:
		t.Fatal("expected a pending change signal")
	}
	select {
	case <-r.Changed():
		t.Fatal("change signals should coalesce")
	default:
	}
}

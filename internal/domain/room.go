package domain

import "time"

// ChatRoom is the room summary returned by the chatroom endpoints and kept
// up to date by the realtime projection.
type ChatRoom struct {
	RoomSeq       uint64    `json:"chatroomSeq"`
	Name          string    `json:"chatroomName"`
	Participants  []string  `json:"participants,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageTime"`
	UnreadCount   int       `json:"unreadMessageCount"`
}

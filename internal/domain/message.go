package domain

import "time"

// Message type markers pushed by the chat backend. Deletions update message
// history only and are excluded from the room-list projection.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeDelete = "delete"
)

// Message is a single inbound frame on a room topic.
type Message struct {
	Type      string    `json:"type"`
	RoomSeq   uint64    `json:"chatroomSeq"`
	Sender    string    `json:"senderName,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

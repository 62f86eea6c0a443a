package types

import (
	"encoding/json"
	"time"
)

// User is the public snapshot of an account as it appears on the wire.
// The Titan number is the shareable 5-digit identifier, distinct from Id.
type User struct {
	Id          int    `json:"id"`
	Username    string `json:"username"`
	TitanNumber int    `json:"titan_number"`
	FullName    string `json:"full_name,omitempty"`
	IsAdmin     bool   `json:"is_admin,omitempty"`
	BlogUrl     string `json:"blog_url,omitempty"`
	Online      bool   `json:"online,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        string    `json:"room_type"`
	CreatorId   int       `json:"creator_id"`
	Creator     string    `json:"creator,omitempty"`
	Protected   bool      `json:"protected"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type PrivateMessage struct {
	Id                int       `json:"id"`
	SenderId          int       `json:"sender_id"`
	SenderUsername    string    `json:"sender_username,omitempty"`
	RecipientId       int       `json:"recipient_id"`
	RecipientUsername string    `json:"recipient_username,omitempty"`
	Body              string    `json:"message"`
	SentAt            time.Time `json:"sent_at"`
	Delivered         bool      `json:"delivered,omitempty"`
}

type RoomMessage struct {
	Id          int       `json:"id"`
	RoomId      int       `json:"room_id"`
	SenderId    int       `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	TitanNumber int       `json:"titan_number,omitempty"`
	Body        string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

type RepositoryEntry struct {
	Id             int       `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category"`
	Version        string    `json:"version,omitempty"`
	AuthorId       int       `json:"author_id"`
	AuthorUsername string    `json:"author_username,omitempty"`
	FileSize       int64     `json:"file_size"`
	Status         string    `json:"status"`
	DownloadCount  int       `json:"downloads"`
	UploadedAt     time.Time `json:"uploaded_at"`
	ApprovedAt     time.Time `json:"approved_at,omitempty"`
}

// Signal is an opaque WebRTC negotiation payload relayed between peers.
type Signal = json.RawMessage

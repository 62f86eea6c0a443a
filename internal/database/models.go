package database

import (
	"database/sql"
	"time"
)

const (
	RoomKindText  = "text"
	RoomKindVoice = "voice"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
)

// Categories enumerates the valid repository entry categories.
var Categories = []string{
	"application",
	"component",
	"sound_theme",
	"game",
	"tce_package",
	"language_pack",
}

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

type User struct {
	Id           int
	Username     string
	PasswordHash string
	TitanNumber  int
	FullName     string
	IsAdmin      bool
	BlogUrl      string
	Disabled     bool
	CreatedAt    time.Time
	LastLoginAt  sql.NullTime
}

type PrivateMessage struct {
	Id                int
	SenderId          int
	SenderUsername    string
	RecipientId       int
	RecipientUsername string
	Body              string
	SentAt            time.Time
	Delivered         bool
}

type ChatRoom struct {
	Id              int
	Name            string
	Description     string
	Kind            string
	PasswordHash    string
	CreatorId       int
	CreatorUsername string
	MemberCount     int
	CreatedAt       time.Time
}

type RoomMessage struct {
	Id                int
	RoomId            int
	SenderId          int
	SenderUsername    string
	SenderTitanNumber int
	Body              string
	SentAt            time.Time
}

type RoomMembership struct {
	RoomId   int
	UserId   int
	JoinedAt time.Time
}

type RepositoryEntry struct {
	Id             int
	Name           string
	Description    string
	Category       string
	Version        string
	AuthorId       int
	AuthorUsername string
	StoredFilePath string
	FileSize       int64
	Status         string
	DownloadCount  int
	UploadedAt     time.Time
	ApprovedAt     sql.NullTime
	ApprovedBy     sql.NullInt64
}

type RepositoryStats struct {
	TotalApproved  int
	TotalPending   int
	TotalDownloads int
	Categories     map[string]int
}

type CreateUserParams struct {
	Username     string
	PasswordHash string
	FullName     string
}

type CreatePrivateMessageParams struct {
	SenderId    int
	RecipientId int
	Body        string
}

type CreateRoomParams struct {
	Name         string
	Description  string
	Kind         string
	PasswordHash string
	CreatorId    int
}

type CreateRoomMessageParams struct {
	RoomId   int
	SenderId int
	Body     string
}

type CreateEntryParams struct {
	Name        string
	Description string
	Category    string
	Version     string
	AuthorId    int
	FileSize    int64
}

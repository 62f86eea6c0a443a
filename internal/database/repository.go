package database

import "errors"

var (
	// ErrDuplicateUsername is returned by CreateUser when the username is taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrTitanNumbersExhausted is returned when no free 5-digit Titan number
	// could be allocated.
	ErrTitanNumbersExhausted = errors.New("titan number pool exhausted")
)

type TitanRepository interface {
	Ping() error

	CreateUser(params CreateUserParams) (User, error)
	GetUserById(id int) (User, error)
	GetUserByUsername(username string) (User, error)
	GetUserByTitanNumber(titanNumber int) (User, error)
	UpdateUserBlog(userId int, blogUrl string) error
	UpdateLastLogin(userId int) error
	DisableUser(userId int) error

	CreateSession(sessionId string, userId int) error
	DeleteSession(sessionId string) error
	TouchSession(sessionId string) error

	CreatePrivateMessage(params CreatePrivateMessageParams) (PrivateMessage, error)
	MarkMessageDelivered(messageId int) error
	GetPrivateMessages(userId, otherUserId, limit int) ([]PrivateMessage, error)

	CreateRoom(params CreateRoomParams) (ChatRoom, error)
	GetRoomById(id int) (ChatRoom, error)
	ListRooms() ([]ChatRoom, error)
	DeleteRoom(id int) error
	AddRoomMember(roomId, userId int) error
	RemoveRoomMember(roomId, userId int) error
	RoomMemberExists(roomId, userId int) (bool, error)
	GetRoomMemberIds(roomId int) ([]int, error)
	CreateRoomMessage(params CreateRoomMessageParams) (RoomMessage, error)
	GetRoomMessages(roomId, limit int) ([]RoomMessage, error)

	CreateEntry(params CreateEntryParams) (RepositoryEntry, error)
	GetEntryById(id int) (RepositoryEntry, error)
	UpdateEntryFilePath(id int, path string) error
	ApproveEntry(id, adminId int) error
	ListApprovedEntries(category string) ([]RepositoryEntry, error)
	ListPendingEntries() ([]RepositoryEntry, error)
	SearchEntries(query, category string) ([]RepositoryEntry, error)
	IncrementEntryDownloads(id int) error
	DeleteEntry(id int) error
	GetRepositoryStats() (RepositoryStats, error)
}

package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/titannet/titannet-server/internal/auth"
	"github.com/titannet/titannet-server/internal/database"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrWrongPassword = errors.New("wrong room password")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidKind   = errors.New("invalid room type")
)

// RoomManager wraps room persistence with an in-memory membership cache so
// the hot paths (room_message fan-out, voice relay checks) avoid a query per
// delivery. The database stays the source of truth; cache entries are built
// lazily per room and dropped whenever membership changes.
type RoomManager struct {
	db  database.TitanRepository
	log *log.Logger

	mu      sync.Mutex
	members map[int]map[int]struct{}
}

func NewRoomManager(db database.TitanRepository, logger *log.Logger) *RoomManager {
	return &RoomManager{
		db:      db,
		log:     logger,
		members: make(map[int]map[int]struct{}),
	}
}

func (rm *RoomManager) Create(params database.CreateRoomParams, password string) (database.ChatRoom, error) {
	if params.Kind != database.RoomKindText && params.Kind != database.RoomKindVoice {
		return database.ChatRoom{}, ErrInvalidKind
	}

	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return database.ChatRoom{}, fmt.Errorf("hash room password: %w", err)
		}
		params.PasswordHash = hash
	}

	room, err := rm.db.CreateRoom(params)
	if err != nil {
		return database.ChatRoom{}, err
	}

	rm.invalidate(room.Id)
	return room, nil
}

// Join adds the user to the room. Joining a room the user already belongs to
// succeeds without re-checking the password.
func (rm *RoomManager) Join(roomId, userId int, password string) (database.ChatRoom, error) {
	room, err := rm.db.GetRoomById(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ChatRoom{}, ErrRoomNotFound
		}
		return database.ChatRoom{}, err
	}

	member, err := rm.IsMember(roomId, userId)
	if err != nil {
		return database.ChatRoom{}, err
	}
	if member {
		return room, nil
	}

	if room.PasswordHash != "" && !auth.VerifyPassword(room.PasswordHash, password) {
		return database.ChatRoom{}, ErrWrongPassword
	}

	if err := rm.db.AddRoomMember(roomId, userId); err != nil {
		return database.ChatRoom{}, err
	}

	rm.invalidate(roomId)
	return room, nil
}

// Leave removes the user's membership. Leaving a room the user is not in is
// a no-op, as is the creator leaving their own room.
func (rm *RoomManager) Leave(roomId, userId int) (database.ChatRoom, bool, error) {
	room, err := rm.db.GetRoomById(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ChatRoom{}, false, ErrRoomNotFound
		}
		return database.ChatRoom{}, false, err
	}

	if room.CreatorId == userId {
		return room, false, nil
	}

	member, err := rm.IsMember(roomId, userId)
	if err != nil {
		return database.ChatRoom{}, false, err
	}
	if !member {
		return room, false, nil
	}

	if err := rm.db.RemoveRoomMember(roomId, userId); err != nil {
		return database.ChatRoom{}, false, err
	}

	rm.invalidate(roomId)
	return room, true, nil
}

// Delete removes the room and all of its messages and memberships. Only the
// creator may delete a room.
func (rm *RoomManager) Delete(roomId, userId int) (database.ChatRoom, error) {
	room, err := rm.db.GetRoomById(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ChatRoom{}, ErrRoomNotFound
		}
		return database.ChatRoom{}, err
	}

	if room.CreatorId != userId {
		return database.ChatRoom{}, ErrNotAuthorized
	}

	if err := rm.db.DeleteRoom(roomId); err != nil {
		return database.ChatRoom{}, err
	}

	rm.invalidate(roomId)
	return room, nil
}

func (rm *RoomManager) IsMember(roomId, userId int) (bool, error) {
	members, err := rm.memberSet(roomId)
	if err != nil {
		return false, err
	}

	_, ok := members[userId]
	return ok, nil
}

func (rm *RoomManager) MemberIds(roomId int) ([]int, error) {
	members, err := rm.memberSet(roomId)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}

	return ids, nil
}

func (rm *RoomManager) memberSet(roomId int) (map[int]struct{}, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if members, ok := rm.members[roomId]; ok {
		return members, nil
	}

	ids, err := rm.db.GetRoomMemberIds(roomId)
	if err != nil {
		return nil, fmt.Errorf("load room members: %w", err)
	}

	members := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}

	rm.members[roomId] = members
	return members, nil
}

func (rm *RoomManager) invalidate(roomId int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.members, roomId)
}

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/testutil"
)

func createRoomsTestUser(t *testing.T, repo database.TitanRepository, username string) database.User {
	t.Helper()

	user, err := repo.CreateUser(database.CreateUserParams{
		Username:     username,
		PasswordHash: "hashedpassword",
	})
	if err != nil {
		t.Fatalf("create test user %q: %v", username, err)
	}

	return user
}

func TestRoomManagerCreate(t *testing.T) {
	repo := testutil.TestRepository(t)
	rm := NewRoomManager(repo, testutil.TestLogger(t))
	alice := createRoomsTestUser(t, repo, "alice")

	t.Run("rejects unknown room type", func(t *testing.T) {
		_, err := rm.Create(database.CreateRoomParams{
			Name:      "bad",
			Kind:      "video",
			CreatorId: alice.Id,
		}, "")
		assert.ErrorIs(t, err, ErrInvalidKind, "expected invalid kind error")
	})

	t.Run("creates room with creator membership", func(t *testing.T) {
		room, err := rm.Create(database.CreateRoomParams{
			Name:      "general",
			Kind:      database.RoomKindText,
			CreatorId: alice.Id,
		}, "")
		assert.NoError(t, err, "expected no error creating room")

		member, err := rm.IsMember(room.Id, alice.Id)
		assert.NoError(t, err)
		assert.True(t, member, "expected creator to be a member")
	})

	t.Run("hashes the room password", func(t *testing.T) {
		room, err := rm.Create(database.CreateRoomParams{
			Name:      "private",
			Kind:      database.RoomKindVoice,
			CreatorId: alice.Id,
		}, "hunter2")
		assert.NoError(t, err, "expected no error creating protected room")
		assert.NotEmpty(t, room.PasswordHash, "expected password to be stored hashed")
		assert.NotEqual(t, "hunter2", room.PasswordHash, "expected hash to differ from the plain password")
	})
}

func TestRoomManagerJoin(t *testing.T) {
	repo := testutil.TestRepository(t)
	rm := NewRoomManager(repo, testutil.TestLogger(t))
	alice := createRoomsTestUser(t, repo, "alice")
	bob := createRoomsTestUser(t, repo, "bob")

	room, err := rm.Create(database.CreateRoomParams{
		Name:      "protected",
		Kind:      database.RoomKindText,
		CreatorId: alice.Id,
	}, "hunter2")
	assert.NoError(t, err)

	t.Run("unknown room", func(t *testing.T) {
		_, err := rm.Join(9999, bob.Id, "")
		assert.ErrorIs(t, err, ErrRoomNotFound, "expected room not found error")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := rm.Join(room.Id, bob.Id, "wrong")
		assert.ErrorIs(t, err, ErrWrongPassword, "expected wrong password error")

		member, err := rm.IsMember(room.Id, bob.Id)
		assert.NoError(t, err)
		assert.False(t, member, "expected membership to be unchanged after failed join")
	})

	t.Run("correct password", func(t *testing.T) {
		_, err := rm.Join(room.Id, bob.Id, "hunter2")
		assert.NoError(t, err, "expected join to succeed")

		member, err := rm.IsMember(room.Id, bob.Id)
		assert.NoError(t, err)
		assert.True(t, member, "expected bob to be a member")
	})

	t.Run("rejoin skips password check", func(t *testing.T) {
		_, err := rm.Join(room.Id, bob.Id, "wrong")
		assert.NoError(t, err, "expected rejoin by an existing member to succeed")
	})
}

func TestRoomManagerLeave(t *testing.T) {
	repo := testutil.TestRepository(t)
	rm := NewRoomManager(repo, testutil.TestLogger(t))
	alice := createRoomsTestUser(t, repo, "alice")
	bob := createRoomsTestUser(t, repo, "bob")

	room, err := rm.Create(database.CreateRoomParams{
		Name:      "general",
		Kind:      database.RoomKindText,
		CreatorId: alice.Id,
	}, "")
	assert.NoError(t, err)

	_, err = rm.Join(room.Id, bob.Id, "")
	assert.NoError(t, err)

	t.Run("member leaves", func(t *testing.T) {
		_, removed, err := rm.Leave(room.Id, bob.Id)
		assert.NoError(t, err, "expected no error leaving")
		assert.True(t, removed, "expected membership to be removed")

		member, err := rm.IsMember(room.Id, bob.Id)
		assert.NoError(t, err)
		assert.False(t, member, "expected bob to no longer be a member")
	})

	t.Run("leave is idempotent", func(t *testing.T) {
		_, removed, err := rm.Leave(room.Id, bob.Id)
		assert.NoError(t, err, "expected leaving a room twice to succeed")
		assert.False(t, removed, "expected second leave to be a no-op")
	})

	t.Run("creator leave is a no-op", func(t *testing.T) {
		_, removed, err := rm.Leave(room.Id, alice.Id)
		assert.NoError(t, err, "expected no error")
		assert.False(t, removed, "expected the creator to stay a member")

		member, err := rm.IsMember(room.Id, alice.Id)
		assert.NoError(t, err)
		assert.True(t, member, "expected creator membership to survive")
	})
}

func TestRoomManagerDelete(t *testing.T) {
	repo := testutil.TestRepository(t)
	rm := NewRoomManager(repo, testutil.TestLogger(t))
	alice := createRoomsTestUser(t, repo, "alice")
	bob := createRoomsTestUser(t, repo, "bob")

	room, err := rm.Create(database.CreateRoomParams{
		Name:      "general",
		Kind:      database.RoomKindText,
		CreatorId: alice.Id,
	}, "")
	assert.NoError(t, err)

	t.Run("only the creator can delete", func(t *testing.T) {
		_, err := rm.Delete(room.Id, bob.Id)
		assert.ErrorIs(t, err, ErrNotAuthorized, "expected not authorized error")
	})

	t.Run("creator deletes", func(t *testing.T) {
		_, err := rm.Delete(room.Id, alice.Id)
		assert.NoError(t, err, "expected creator delete to succeed")

		_, err = rm.Delete(room.Id, alice.Id)
		assert.ErrorIs(t, err, ErrRoomNotFound, "expected the room to be gone")
	})
}

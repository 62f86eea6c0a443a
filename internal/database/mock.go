package database

import (
	"github.com/stretchr/testify/mock"
)

type MockTitanRepository struct {
	mock.Mock
}

func (m *MockTitanRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockTitanRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTitanRepository) GetUserById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTitanRepository) GetUserByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTitanRepository) GetUserByTitanNumber(titanNumber int) (User, error) {
	args := m.Called(titanNumber)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTitanRepository) UpdateUserBlog(userId int, blogUrl string) error {
	args := m.Called(userId, blogUrl)
	return args.Error(0)
}
func (m *MockTitanRepository) UpdateLastLogin(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockTitanRepository) DisableUser(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockTitanRepository) CreateSession(sessionId string, userId int) error {
	args := m.Called(sessionId, userId)
	return args.Error(0)
}
func (m *MockTitanRepository) DeleteSession(sessionId string) error {
	args := m.Called(sessionId)
	return args.Error(0)
}
func (m *MockTitanRepository) TouchSession(sessionId string) error {
	args := m.Called(sessionId)
	return args.Error(0)
}
func (m *MockTitanRepository) CreatePrivateMessage(params CreatePrivateMessageParams) (PrivateMessage, error) {
	args := m.Called(params)
	return args.Get(0).(PrivateMessage), args.Error(1)
}
func (m *MockTitanRepository) MarkMessageDelivered(messageId int) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockTitanRepository) GetPrivateMessages(userId, otherUserId, limit int) ([]PrivateMessage, error) {
	args := m.Called(userId, otherUserId, limit)
	return args.Get(0).([]PrivateMessage), args.Error(1)
}
func (m *MockTitanRepository) CreateRoom(params CreateRoomParams) (ChatRoom, error) {
	args := m.Called(params)
	return args.Get(0).(ChatRoom), args.Error(1)
}
func (m *MockTitanRepository) GetRoomById(id int) (ChatRoom, error) {
	args := m.Called(id)
	return args.Get(0).(ChatRoom), args.Error(1)
}
func (m *MockTitanRepository) ListRooms() ([]ChatRoom, error) {
	args := m.Called()
	return args.Get(0).([]ChatRoom), args.Error(1)
}
func (m *MockTitanRepository) DeleteRoom(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockTitanRepository) AddRoomMember(roomId, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockTitanRepository) RemoveRoomMember(roomId, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockTitanRepository) RoomMemberExists(roomId, userId int) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockTitanRepository) GetRoomMemberIds(roomId int) ([]int, error) {
	args := m.Called(roomId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockTitanRepository) CreateRoomMessage(params CreateRoomMessageParams) (RoomMessage, error) {
	args := m.Called(params)
	return args.Get(0).(RoomMessage), args.Error(1)
}
func (m *MockTitanRepository) GetRoomMessages(roomId, limit int) ([]RoomMessage, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]RoomMessage), args.Error(1)
}
func (m *MockTitanRepository) CreateEntry(params CreateEntryParams) (RepositoryEntry, error) {
	args := m.Called(params)
	return args.Get(0).(RepositoryEntry), args.Error(1)
}
func (m *MockTitanRepository) GetEntryById(id int) (RepositoryEntry, error) {
	args := m.Called(id)
	return args.Get(0).(RepositoryEntry), args.Error(1)
}
func (m *MockTitanRepository) UpdateEntryFilePath(id int, path string) error {
	args := m.Called(id, path)
	return args.Error(0)
}
func (m *MockTitanRepository) ApproveEntry(id, adminId int) error {
	args := m.Called(id, adminId)
	return args.Error(0)
}
func (m *MockTitanRepository) ListApprovedEntries(category string) ([]RepositoryEntry, error) {
	args := m.Called(category)
	return args.Get(0).([]RepositoryEntry), args.Error(1)
}
func (m *MockTitanRepository) ListPendingEntries() ([]RepositoryEntry, error) {
	args := m.Called()
	return args.Get(0).([]RepositoryEntry), args.Error(1)
}
func (m *MockTitanRepository) SearchEntries(query, category string) ([]RepositoryEntry, error) {
	args := m.Called(query, category)
	return args.Get(0).([]RepositoryEntry), args.Error(1)
}
func (m *MockTitanRepository) IncrementEntryDownloads(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockTitanRepository) DeleteEntry(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockTitanRepository) GetRepositoryStats() (RepositoryStats, error) {
	args := m.Called()
	return args.Get(0).(RepositoryStats), args.Error(1)
}

package server

import (
	"encoding/json"
	"time"

	"github.com/titannet/titannet-server/internal/types"
)

// Request types accepted on the wire. The envelope carries a "type" field;
// the remaining fields are decoded per type. Unknown types are rejected with
// a MalformedMessage error.
const (
	TypeRegister        = "register"
	TypeLogin           = "login"
	TypeLogout          = "logout"
	TypePrivateMessage  = "private_message"
	TypeGetMessages     = "get_messages"
	TypeCreateRoom      = "create_room"
	TypeJoinRoom        = "join_room"
	TypeLeaveRoom       = "leave_room"
	TypeDeleteRoom      = "delete_room"
	TypeRoomMessage     = "room_message"
	TypeGetRooms        = "get_rooms"
	TypeGetRoomMessages = "get_room_messages"
	TypeGetOnlineUsers  = "get_online_users"
	TypeVoiceSignal     = "voice_signal"
	TypeUpdateBlog      = "update_blog"
	TypePing            = "ping"
)

// Error codes surfaced in error envelopes.
const (
	CodeInvalidCredentials = "InvalidCredentials"
	CodeDuplicateUsername  = "DuplicateUsername"
	CodeNotAuthenticated   = "NotAuthenticated"
	CodeNotAuthorized      = "NotAuthorized"
	CodeRecipientNotFound  = "RecipientNotFound"
	CodeRoomNotFound       = "RoomNotFound"
	CodeWrongPassword      = "WrongPassword"
	CodeNotAMember         = "NotAMember"
	CodeInvalidRoomType    = "InvalidRoomType"
	CodeMalformedMessage   = "MalformedMessage"
	CodeInternalError      = "InternalError"
)

type envelope struct {
	Type string `json:"type"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type privateMessageRequest struct {
	RecipientId          int    `json:"recipient_id"`
	RecipientTitanNumber int    `json:"recipient_titan_number"`
	Message              string `json:"message"`
}

type getMessagesRequest struct {
	UserId int `json:"user_id"`
	Limit  int `json:"limit"`
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RoomType    string `json:"room_type"`
	Password    string `json:"password"`
}

type joinRoomRequest struct {
	RoomId   int    `json:"room_id"`
	Password string `json:"password"`
}

type leaveRoomRequest struct {
	RoomId int `json:"room_id"`
}

type deleteRoomRequest struct {
	RoomId int `json:"room_id"`
}

type roomMessageRequest struct {
	RoomId  int    `json:"room_id"`
	Message string `json:"message"`
}

type getRoomMessagesRequest struct {
	RoomId int `json:"room_id"`
	Limit  int `json:"limit"`
}

type voiceSignalRequest struct {
	RoomId       int             `json:"room_id"`
	TargetUserId int             `json:"target_user_id"`
	Signal       json.RawMessage `json:"signal"`
}

type updateBlogRequest struct {
	BlogUrl string `json:"blog_url"`
}

// ErrorMessage is the structured error envelope. InResponseTo names the
// request type the error answers; validation errors never close the
// connection.
type ErrorMessage struct {
	Type         string `json:"type"`
	InResponseTo string `json:"in_response_to,omitempty"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

func Err(inResponseTo, code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:         "error",
		InResponseTo: inResponseTo,
		Code:         code,
		Message:      message,
	}
}

func ErrNotAuthenticated(inResponseTo string) *ErrorMessage {
	return Err(inResponseTo, CodeNotAuthenticated, "authentication required")
}

func ErrMalformedMessage(inResponseTo string) *ErrorMessage {
	return Err(inResponseTo, CodeMalformedMessage, "malformed message")
}

func ErrInternalError(inResponseTo string) *ErrorMessage {
	return Err(inResponseTo, CodeInternalError, "internal server error")
}

type RegisterResponse struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	UserId      int    `json:"user_id"`
	Username    string `json:"username"`
	TitanNumber int    `json:"titan_number"`
}

type LoginResponse struct {
	Type        string       `json:"type"`
	Success     bool         `json:"success"`
	SessionId   string       `json:"session_id"`
	User        types.User   `json:"user"`
	OnlineUsers []types.User `json:"online_users"`
}

type LogoutResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

type UserStatusMessage struct {
	Type        string `json:"type"`
	UserId      int    `json:"user_id"`
	Username    string `json:"username"`
	TitanNumber int    `json:"titan_number"`
	Status      string `json:"status"`
}

type UserRegisteredMessage struct {
	Type        string `json:"type"`
	Username    string `json:"username"`
	TitanNumber int    `json:"titan_number"`
}

type MessageSentMessage struct {
	Type      string `json:"type"`
	MessageId int    `json:"message_id"`
}

type PrivateMessageMessage struct {
	Type              string    `json:"type"`
	MessageId         int       `json:"message_id"`
	SenderId          int       `json:"sender_id"`
	SenderUsername    string    `json:"sender_username"`
	SenderTitanNumber int       `json:"sender_titan_number"`
	Message           string    `json:"message"`
	SentAt            time.Time `json:"sent_at"`
}

type PrivateMessagesMessage struct {
	Type     string                 `json:"type"`
	Messages []types.PrivateMessage `json:"messages"`
}

type RoomCreatedMessage struct {
	Type    string     `json:"type"`
	Success bool       `json:"success"`
	Room    types.Room `json:"room"`
}

type NewRoomMessage struct {
	Type string     `json:"type"`
	Room types.Room `json:"room"`
}

type RoomJoinedMessage struct {
	Type    string `json:"type"`
	RoomId  int    `json:"room_id"`
	Success bool   `json:"success"`
}

type UserJoinedRoomMessage struct {
	Type     string `json:"type"`
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

type UserLeftRoomMessage struct {
	Type     string `json:"type"`
	RoomId   int    `json:"room_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

type LeaveRoomResponse struct {
	Type    string `json:"type"`
	RoomId  int    `json:"room_id"`
	Success bool   `json:"success"`
}

type RoomDeletedMessage struct {
	Type    string `json:"type"`
	RoomId  int    `json:"room_id"`
	Success bool   `json:"success"`
}

type RoomRemovedMessage struct {
	Type   string `json:"type"`
	RoomId int    `json:"room_id"`
}

type RoomMessageMessage struct {
	Type        string    `json:"type"`
	RoomId      int       `json:"room_id"`
	MessageId   int       `json:"message_id"`
	UserId      int       `json:"user_id"`
	Username    string    `json:"username"`
	TitanNumber int       `json:"titan_number"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"sent_at"`
}

type RoomsListMessage struct {
	Type  string       `json:"type"`
	Rooms []types.Room `json:"rooms"`
}

type RoomMessagesMessage struct {
	Type     string              `json:"type"`
	RoomId   int                 `json:"room_id"`
	Messages []types.RoomMessage `json:"messages"`
}

type OnlineUsersMessage struct {
	Type  string       `json:"type"`
	Users []types.User `json:"users"`
}

type BlogUpdatedMessage struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

type VoiceSignalMessage struct {
	Type         string          `json:"type"`
	RoomId       int             `json:"room_id"`
	FromUserId   int             `json:"from_user_id"`
	FromUsername string          `json:"from_username"`
	Signal       json.RawMessage `json:"signal"`
}

type PongMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// clampLimit applies the default and hard cap for history queries.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

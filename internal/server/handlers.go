package server

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/titannet/titannet-server/internal/auth"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/stats"
	"github.com/titannet/titannet-server/internal/types"
)

func (c *Client) handleRegister(req registerRequest) {
	if req.Username == "" || req.Password == "" {
		c.queueMessage(Err(TypeRegister, CodeMalformedMessage, "username and password are required"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.log.Println("hash password:", err)
		c.queueMessage(ErrInternalError(TypeRegister))
		return
	}

	user, err := c.chatServer.db.CreateUser(database.CreateUserParams{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateUsername) {
			c.queueMessage(Err(TypeRegister, CodeDuplicateUsername, "username is already taken"))
			return
		}
		c.log.Println("create user:", err)
		c.queueMessage(ErrInternalError(TypeRegister))
		return
	}

	c.queueMessage(&RegisterResponse{
		Type:        "register_response",
		Success:     true,
		UserId:      user.Id,
		Username:    user.Username,
		TitanNumber: user.TitanNumber,
	})

	c.chatServer.broadcast(&UserRegisteredMessage{
		Type:        "user_registered",
		Username:    user.Username,
		TitanNumber: user.TitanNumber,
	}, c)
}

func (c *Client) handleLogin(req loginRequest) {
	user, err := c.chatServer.db.GetUserByUsername(req.Username)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Println("get user:", err)
		}
		c.queueMessage(Err(TypeLogin, CodeInvalidCredentials, "invalid username or password"))
		return
	}

	if user.Disabled || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		c.queueMessage(Err(TypeLogin, CodeInvalidCredentials, "invalid username or password"))
		return
	}

	// A second login on the same connection replaces the first session.
	if c.authenticated {
		c.chatServer.unbindSession(c)
		c.authenticated = false
	}

	if err := c.chatServer.db.UpdateLastLogin(user.Id); err != nil {
		c.log.Println("update last login:", err)
	}

	c.user = wireUser(user, true)

	sessionId, err := c.chatServer.bindSession(c, user)
	if err != nil {
		c.log.Println("bind session:", err)
		c.queueMessage(ErrInternalError(TypeLogin))
		return
	}

	c.sessionId = sessionId
	c.authenticated = true

	c.queueMessage(&LoginResponse{
		Type:        "login_response",
		Success:     true,
		SessionId:   sessionId,
		User:        c.user,
		OnlineUsers: c.chatServer.onlineUsers(),
	})
}

func (c *Client) handleLogout() {
	c.chatServer.unbindSession(c)
	c.authenticated = false
	c.sessionId = ""

	c.queueMessage(&LogoutResponse{Type: "logout_response", Success: true})
}

func (c *Client) handlePrivateMessage(req privateMessageRequest) {
	if req.Message == "" {
		c.queueMessage(Err(TypePrivateMessage, CodeMalformedMessage, "message body is required"))
		return
	}

	var (
		recipient database.User
		err       error
	)
	if req.RecipientTitanNumber != 0 {
		recipient, err = c.chatServer.db.GetUserByTitanNumber(req.RecipientTitanNumber)
	} else {
		recipient, err = c.chatServer.db.GetUserById(req.RecipientId)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(Err(TypePrivateMessage, CodeRecipientNotFound, "recipient not found"))
			return
		}
		c.log.Println("resolve recipient:", err)
		c.queueMessage(ErrInternalError(TypePrivateMessage))
		return
	}

	msg, err := c.chatServer.db.CreatePrivateMessage(database.CreatePrivateMessageParams{
		SenderId:    c.user.Id,
		RecipientId: recipient.Id,
		Body:        req.Message,
	})
	if err != nil {
		c.log.Println("create private message:", err)
		c.queueMessage(ErrInternalError(TypePrivateMessage))
		return
	}

	c.chatServer.stats.Incr(stats.NumPrivateMessages)

	c.queueMessage(&MessageSentMessage{Type: "message_sent", MessageId: msg.Id})

	if c.chatServer.isOnline(recipient.Id) {
		if err := c.chatServer.db.MarkMessageDelivered(msg.Id); err != nil {
			c.log.Println("mark delivered:", err)
		}

		c.chatServer.sendToUser(recipient.Id, &PrivateMessageMessage{
			Type:              TypePrivateMessage,
			MessageId:         msg.Id,
			SenderId:          c.user.Id,
			SenderUsername:    c.user.Username,
			SenderTitanNumber: c.user.TitanNumber,
			Message:           msg.Body,
			SentAt:            msg.SentAt,
		})
	}
}

func (c *Client) handleGetMessages(req getMessagesRequest) {
	msgs, err := c.chatServer.db.GetPrivateMessages(c.user.Id, req.UserId, clampLimit(req.Limit))
	if err != nil {
		c.log.Println("get private messages:", err)
		c.queueMessage(ErrInternalError(TypeGetMessages))
		return
	}

	wire := make([]types.PrivateMessage, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, wirePrivateMessage(m))
	}

	c.queueMessage(&PrivateMessagesMessage{Type: "private_messages", Messages: wire})
}

func (c *Client) handleCreateRoom(req createRoomRequest) {
	if req.Name == "" {
		c.queueMessage(Err(TypeCreateRoom, CodeMalformedMessage, "room name is required"))
		return
	}

	room, err := c.chatServer.rooms.Create(database.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.RoomType,
		CreatorId:   c.user.Id,
	}, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidKind) {
			c.queueMessage(Err(TypeCreateRoom, CodeInvalidRoomType, "room type must be text or voice"))
			return
		}
		c.log.Println("create room:", err)
		c.queueMessage(ErrInternalError(TypeCreateRoom))
		return
	}

	c.queueMessage(&RoomCreatedMessage{Type: "room_created", Success: true, Room: wireRoom(room)})

	c.chatServer.broadcast(&NewRoomMessage{Type: "new_room", Room: wireRoom(room)}, c)
}

func (c *Client) handleJoinRoom(req joinRoomRequest) {
	room, err := c.chatServer.rooms.Join(req.RoomId, c.user.Id, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound):
			c.queueMessage(Err(TypeJoinRoom, CodeRoomNotFound, "room not found"))
		case errors.Is(err, ErrWrongPassword):
			c.queueMessage(Err(TypeJoinRoom, CodeWrongPassword, "wrong room password"))
		default:
			c.log.Println("join room:", err)
			c.queueMessage(ErrInternalError(TypeJoinRoom))
		}
		return
	}

	c.queueMessage(&RoomJoinedMessage{Type: "room_joined", RoomId: room.Id, Success: true})

	memberIds, err := c.chatServer.rooms.MemberIds(room.Id)
	if err != nil {
		c.log.Println("room member ids:", err)
		return
	}

	c.chatServer.sendToUsers(memberIds, &UserJoinedRoomMessage{
		Type:     "user_joined_room",
		RoomId:   room.Id,
		UserId:   c.user.Id,
		Username: c.user.Username,
	}, c)
}

func (c *Client) handleLeaveRoom(req leaveRoomRequest) {
	room, removed, err := c.chatServer.rooms.Leave(req.RoomId, c.user.Id)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			c.queueMessage(Err(TypeLeaveRoom, CodeRoomNotFound, "room not found"))
			return
		}
		c.log.Println("leave room:", err)
		c.queueMessage(ErrInternalError(TypeLeaveRoom))
		return
	}

	c.queueMessage(&LeaveRoomResponse{Type: "leave_room_response", RoomId: room.Id, Success: true})

	if !removed {
		return
	}

	memberIds, err := c.chatServer.rooms.MemberIds(room.Id)
	if err != nil {
		c.log.Println("room member ids:", err)
		return
	}

	c.chatServer.sendToUsers(memberIds, &UserLeftRoomMessage{
		Type:     "user_left_room",
		RoomId:   room.Id,
		UserId:   c.user.Id,
		Username: c.user.Username,
	}, c)
}

func (c *Client) handleDeleteRoom(req deleteRoomRequest) {
	room, err := c.chatServer.rooms.Delete(req.RoomId, c.user.Id)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoomNotFound):
			c.queueMessage(Err(TypeDeleteRoom, CodeRoomNotFound, "room not found"))
		case errors.Is(err, ErrNotAuthorized):
			c.queueMessage(Err(TypeDeleteRoom, CodeNotAuthorized, "only the creator can delete a room"))
		default:
			c.log.Println("delete room:", err)
			c.queueMessage(ErrInternalError(TypeDeleteRoom))
		}
		return
	}

	c.queueMessage(&RoomDeletedMessage{Type: "room_deleted", RoomId: room.Id, Success: true})

	c.chatServer.broadcast(&RoomRemovedMessage{Type: "room_removed", RoomId: room.Id}, c)
}

func (c *Client) handleRoomMessage(req roomMessageRequest) {
	if req.Message == "" {
		c.queueMessage(Err(TypeRoomMessage, CodeMalformedMessage, "message body is required"))
		return
	}

	member, err := c.chatServer.rooms.IsMember(req.RoomId, c.user.Id)
	if err != nil {
		c.log.Println("room membership:", err)
		c.queueMessage(ErrInternalError(TypeRoomMessage))
		return
	}
	if !member {
		c.queueMessage(Err(TypeRoomMessage, CodeNotAMember, "not a member of this room"))
		return
	}

	msg, err := c.chatServer.db.CreateRoomMessage(database.CreateRoomMessageParams{
		RoomId:   req.RoomId,
		SenderId: c.user.Id,
		Body:     req.Message,
	})
	if err != nil {
		c.log.Println("create room message:", err)
		c.queueMessage(ErrInternalError(TypeRoomMessage))
		return
	}

	c.chatServer.stats.Incr(stats.NumRoomMessages)

	memberIds, err := c.chatServer.rooms.MemberIds(req.RoomId)
	if err != nil {
		c.log.Println("room member ids:", err)
		return
	}

	// Delivered to every member, the sender included, so all sessions see
	// the same ordered stream.
	c.chatServer.sendToUsers(memberIds, &RoomMessageMessage{
		Type:        TypeRoomMessage,
		RoomId:      req.RoomId,
		MessageId:   msg.Id,
		UserId:      c.user.Id,
		Username:    c.user.Username,
		TitanNumber: c.user.TitanNumber,
		Message:     msg.Body,
		SentAt:      msg.SentAt,
	}, nil)
}

func (c *Client) handleGetRooms() {
	rooms, err := c.chatServer.db.ListRooms()
	if err != nil {
		c.log.Println("list rooms:", err)
		c.queueMessage(ErrInternalError(TypeGetRooms))
		return
	}

	wire := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		wire = append(wire, wireRoom(r))
	}

	c.queueMessage(&RoomsListMessage{Type: "rooms_list", Rooms: wire})
}

func (c *Client) handleGetRoomMessages(req getRoomMessagesRequest) {
	if _, err := c.chatServer.db.GetRoomById(req.RoomId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(Err(TypeGetRoomMessages, CodeRoomNotFound, "room not found"))
			return
		}
		c.log.Println("get room:", err)
		c.queueMessage(ErrInternalError(TypeGetRoomMessages))
		return
	}

	msgs, err := c.chatServer.db.GetRoomMessages(req.RoomId, clampLimit(req.Limit))
	if err != nil {
		c.log.Println("get room messages:", err)
		c.queueMessage(ErrInternalError(TypeGetRoomMessages))
		return
	}

	wire := make([]types.RoomMessage, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, wireRoomMessage(m))
	}

	c.queueMessage(&RoomMessagesMessage{Type: "room_messages", RoomId: req.RoomId, Messages: wire})
}

func (c *Client) handleGetOnlineUsers() {
	c.queueMessage(&OnlineUsersMessage{Type: "online_users", Users: c.chatServer.onlineUsers()})
}

func (c *Client) handleVoiceSignal(req voiceSignalRequest) {
	c.chatServer.voice.Relay(c, req.RoomId, req.TargetUserId, req.Signal)
}

func (c *Client) handleUpdateBlog(req updateBlogRequest) {
	if req.BlogUrl == "" || !strings.Contains(req.BlogUrl, "://") {
		c.queueMessage(Err(TypeUpdateBlog, CodeMalformedMessage, "blog_url must be an absolute URL"))
		return
	}

	if err := c.chatServer.db.UpdateUserBlog(c.user.Id, req.BlogUrl); err != nil {
		c.log.Println("update blog:", err)
		c.queueMessage(ErrInternalError(TypeUpdateBlog))
		return
	}

	c.user.BlogUrl = req.BlogUrl

	c.queueMessage(&BlogUpdatedMessage{Type: "blog_updated", Success: true})
}

func (c *Client) handlePing() {
	if err := c.chatServer.db.TouchSession(c.sessionId); err != nil {
		c.log.Println("touch session:", err)
	}

	c.queueMessage(&PongMessage{Type: "pong", Timestamp: Now()})
}

package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/titannet/titannet-server/internal/stats"
	"github.com/titannet/titannet-server/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger

	authenticated bool
	sessionId     string
	user          types.User

	send     chan any
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan any, 256),
		stop:       make(chan struct{}),
	}
}

// Serve runs the read and write pumps until the connection closes.
func (c *Client) Serve() {
	c.chatServer.stats.Incr(stats.NumActiveConnections)
	go c.write()
	c.read()
}

func (c *Client) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.dispatch(raw)
	}
}

// dispatch routes a raw frame to its handler. The envelope is decoded first
// for the type, then the full request is decoded per type from the same
// bytes. A frame that is not JSON, or whose type is unknown, earns a
// MalformedMessage error; the connection stays open.
func (c *Client) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.queueMessage(ErrMalformedMessage(""))
		return
	}

	if !c.authenticated {
		switch env.Type {
		case TypeRegister, TypeLogin:
		default:
			c.queueMessage(ErrNotAuthenticated(env.Type))
			return
		}
	}

	switch env.Type {
	case TypeRegister:
		var req registerRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleRegister(req)
	case TypeLogin:
		var req loginRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleLogin(req)
	case TypeLogout:
		c.handleLogout()
	case TypePrivateMessage:
		var req privateMessageRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handlePrivateMessage(req)
	case TypeGetMessages:
		var req getMessagesRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleGetMessages(req)
	case TypeCreateRoom:
		var req createRoomRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleCreateRoom(req)
	case TypeJoinRoom:
		var req joinRoomRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleJoinRoom(req)
	case TypeLeaveRoom:
		var req leaveRoomRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleLeaveRoom(req)
	case TypeDeleteRoom:
		var req deleteRoomRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleDeleteRoom(req)
	case TypeRoomMessage:
		var req roomMessageRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleRoomMessage(req)
	case TypeGetRooms:
		c.handleGetRooms()
	case TypeGetRoomMessages:
		var req getRoomMessagesRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleGetRoomMessages(req)
	case TypeGetOnlineUsers:
		c.handleGetOnlineUsers()
	case TypeVoiceSignal:
		var req voiceSignalRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleVoiceSignal(req)
	case TypeUpdateBlog:
		var req updateBlogRequest
		if !c.decode(raw, env.Type, &req) {
			return
		}
		c.handleUpdateBlog(req)
	case TypePing:
		c.handlePing()
	default:
		c.queueMessage(ErrMalformedMessage(env.Type))
	}
}

func (c *Client) decode(raw []byte, msgType string, dst any) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		c.queueMessage(ErrMalformedMessage(msgType))
		return false
	}
	return true
}

func (c *Client) queueMessage(msg any) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	if c.authenticated {
		c.chatServer.unbindSession(c)
		c.authenticated = false
	}
	c.chatServer.stats.Decr(stats.NumActiveConnections)
	c.stopClient()
}

package server

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/stats"
	"github.com/titannet/titannet-server/internal/types"
)

// event is a delivery destined for clients other than the one that produced
// it. All cross-client traffic funnels through a single channel consumed by
// one goroutine, which keeps deliveries within a conversation in the order
// they were produced.
type event struct {
	// targetIds selects recipient user ids. Empty means every
	// authenticated client.
	targetIds []int
	skip      *Client
	payload   any
}

type ChatServer struct {
	log   *log.Logger
	db    database.TitanRepository
	stats stats.StatsProvider
	rooms *RoomManager
	voice *VoiceRelay

	mu          sync.Mutex
	sessions    map[string]*Client
	userClients map[int]map[*Client]struct{}

	eventChan chan *event
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func NewChatServer(db database.TitanRepository, statsProvider stats.StatsProvider, logger *log.Logger) *ChatServer {
	cs := &ChatServer{
		log:         logger,
		db:          db,
		stats:       statsProvider,
		sessions:    make(map[string]*Client),
		userClients: make(map[int]map[*Client]struct{}),
		eventChan:   make(chan *event, 512),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}

	cs.rooms = NewRoomManager(db, logger)
	cs.voice = NewVoiceRelay(cs, cs.rooms, logger)

	statsProvider.RegisterMetric(stats.NumActiveConnections)
	statsProvider.RegisterMetric(stats.NumSessions)
	statsProvider.RegisterMetric(stats.NumPrivateMessages)
	statsProvider.RegisterMetric(stats.NumRoomMessages)

	return cs
}

func (cs *ChatServer) Run() {
	go func() {
		defer close(cs.doneChan)
		for {
			select {
			case ev := <-cs.eventChan:
				cs.deliver(ev)
			case <-cs.stopChan:
				return
			}
		}
	}()
}

// Shutdown stops the fan-out loop and closes every connected client.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	close(cs.stopChan)

	select {
	case <-cs.doneChan:
	case <-ctx.Done():
		return ctx.Err()
	}

	cs.mu.Lock()
	clients := make([]*Client, 0, len(cs.sessions))
	for _, c := range cs.sessions {
		clients = append(clients, c)
	}
	cs.mu.Unlock()

	for _, c := range clients {
		c.stopClient()
	}

	return nil
}

func (cs *ChatServer) deliver(ev *event) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if len(ev.targetIds) == 0 {
		for _, c := range cs.sessions {
			if c == ev.skip {
				continue
			}
			c.queueMessage(ev.payload)
		}
		return
	}

	for _, userId := range ev.targetIds {
		for c := range cs.userClients[userId] {
			if c == ev.skip {
				continue
			}
			c.queueMessage(ev.payload)
		}
	}
}

// broadcast queues a payload for every authenticated client except skip.
func (cs *ChatServer) broadcast(payload any, skip *Client) {
	cs.enqueue(&event{skip: skip, payload: payload})
}

// sendToUser queues a payload for every live session of the given user.
func (cs *ChatServer) sendToUser(userId int, payload any) {
	cs.enqueue(&event{targetIds: []int{userId}, payload: payload})
}

// sendToUsers queues a payload for every live session of the given users,
// except the skip client.
func (cs *ChatServer) sendToUsers(userIds []int, payload any, skip *Client) {
	cs.enqueue(&event{targetIds: userIds, skip: skip, payload: payload})
}

func (cs *ChatServer) enqueue(ev *event) {
	select {
	case cs.eventChan <- ev:
	default:
		cs.log.Println("event channel full, dropping delivery")
	}
}

// bindSession records an authenticated connection and persists its session
// row. Returns the new session id.
func (cs *ChatServer) bindSession(c *Client, user database.User) (string, error) {
	sessionId := uuid.NewString()
	if err := cs.db.CreateSession(sessionId, user.Id); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	cs.mu.Lock()
	cs.sessions[sessionId] = c
	clients, ok := cs.userClients[user.Id]
	if !ok {
		clients = make(map[*Client]struct{})
		cs.userClients[user.Id] = clients
	}
	clients[c] = struct{}{}
	first := len(clients) == 1
	cs.mu.Unlock()

	cs.stats.Incr(stats.NumSessions)

	if first {
		cs.broadcast(&UserStatusMessage{
			Type:        "user_status",
			UserId:      user.Id,
			Username:    user.Username,
			TitanNumber: user.TitanNumber,
			Status:      "online",
		}, c)
	}

	return sessionId, nil
}

// unbindSession drops the connection from the registry. When it was the
// user's last session, the user goes offline and the rest of the server is
// told.
func (cs *ChatServer) unbindSession(c *Client) {
	if c.sessionId == "" {
		return
	}

	if err := cs.db.DeleteSession(c.sessionId); err != nil {
		cs.log.Println("delete session:", err)
	}

	cs.mu.Lock()
	delete(cs.sessions, c.sessionId)
	last := false
	if clients, ok := cs.userClients[c.user.Id]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(cs.userClients, c.user.Id)
			last = true
		}
	}
	cs.mu.Unlock()

	cs.stats.Decr(stats.NumSessions)

	if last {
		cs.broadcast(&UserStatusMessage{
			Type:        "user_status",
			UserId:      c.user.Id,
			Username:    c.user.Username,
			TitanNumber: c.user.TitanNumber,
			Status:      "offline",
		}, c)
	}
}

// isOnline reports whether the user has at least one live session.
func (cs *ChatServer) isOnline(userId int) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.userClients[userId]) > 0
}

// onlineUsers snapshots every user with a live session, sorted by id.
func (cs *ChatServer) onlineUsers() []types.User {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	seen := make(map[int]struct{}, len(cs.userClients))
	users := make([]types.User, 0, len(cs.userClients))
	for userId, clients := range cs.userClients {
		if len(clients) == 0 {
			continue
		}
		if _, ok := seen[userId]; ok {
			continue
		}
		seen[userId] = struct{}{}

		for c := range clients {
			user := c.user
			user.Online = true
			users = append(users, user)
			break
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Id < users[j].Id })
	return users
}

func wireUser(u database.User, online bool) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		TitanNumber: u.TitanNumber,
		FullName:    u.FullName,
		IsAdmin:     u.IsAdmin,
		BlogUrl:     u.BlogUrl,
		Online:      online,
	}
}

func wireRoom(r database.ChatRoom) types.Room {
	return types.Room{
		Id:          r.Id,
		Name:        r.Name,
		Description: r.Description,
		Kind:        r.Kind,
		CreatorId:   r.CreatorId,
		Creator:     r.CreatorUsername,
		Protected:   r.PasswordHash != "",
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
	}
}

func wirePrivateMessage(m database.PrivateMessage) types.PrivateMessage {
	return types.PrivateMessage{
		Id:                m.Id,
		SenderId:          m.SenderId,
		SenderUsername:    m.SenderUsername,
		RecipientId:       m.RecipientId,
		RecipientUsername: m.RecipientUsername,
		Body:              m.Body,
		SentAt:            m.SentAt,
		Delivered:         m.Delivered,
	}
}

func wireRoomMessage(m database.RoomMessage) types.RoomMessage {
	return types.RoomMessage{
		Id:          m.Id,
		RoomId:      m.RoomId,
		SenderId:    m.SenderId,
		Username:    m.SenderUsername,
		TitanNumber: m.SenderTitanNumber,
		Body:        m.Body,
		SentAt:      m.SentAt,
	}
}

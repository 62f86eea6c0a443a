package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/titannet/titannet-server/internal/database"
	"github.com/titannet/titannet-server/internal/testutil"
	"github.com/titannet/titannet-server/internal/types"
)

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan any, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&PongMessage{Type: "pong"})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan any, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &PongMessage{}
		res := c.queueMessage(&PongMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_dispatch(t *testing.T) {
	cs := newTestChatServer(t, &database.MockTitanRepository{})

	t.Run("rejects non-JSON frames", func(t *testing.T) {
		c := newTestClient(t, cs, types.User{Id: 1})

		c.dispatch([]byte("not json"))

		msg := receive(t, c)
		errMsg, ok := msg.(*ErrorMessage)
		assert.True(t, ok, "expected an error envelope")
		assert.Equal(t, CodeMalformedMessage, errMsg.Code, "expected malformed message code")
	})

	t.Run("rejects unknown message types", func(t *testing.T) {
		c := newTestClient(t, cs, types.User{Id: 1})

		c.dispatch([]byte(`{"type":"explode"}`))

		msg := receive(t, c)
		errMsg, ok := msg.(*ErrorMessage)
		assert.True(t, ok, "expected an error envelope")
		assert.Equal(t, CodeMalformedMessage, errMsg.Code, "expected malformed message code")
		assert.Equal(t, "explode", errMsg.InResponseTo, "expected the offending type to be echoed")
	})

	t.Run("gates requests before login", func(t *testing.T) {
		c := NewClient(nil, cs, testutil.TestLogger(t))

		gated := []string{
			TypeLogout,
			TypePrivateMessage,
			TypeGetMessages,
			TypeCreateRoom,
			TypeJoinRoom,
			TypeLeaveRoom,
			TypeDeleteRoom,
			TypeRoomMessage,
			TypeGetRooms,
			TypeGetRoomMessages,
			TypeGetOnlineUsers,
			TypeVoiceSignal,
			TypeUpdateBlog,
			TypePing,
		}

		for _, msgType := range gated {
			c.dispatch([]byte(`{"type":"` + msgType + `"}`))

			msg := receive(t, c)
			errMsg, ok := msg.(*ErrorMessage)
			assert.True(t, ok, "expected an error envelope for %q", msgType)
			assert.Equal(t, CodeNotAuthenticated, errMsg.Code, "expected not authenticated code for %q", msgType)
			assert.Equal(t, msgType, errMsg.InResponseTo, "expected in_response_to to name the request")
		}
	})

}

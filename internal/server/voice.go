package server

import (
	"encoding/json"
	"log"
)

// VoiceRelay forwards WebRTC signaling payloads between two members of a
// voice room. The payload is opaque; the relay never inspects SDP or ICE
// content. Signals whose sender or target is not a member of the room, or
// whose target has no live session, are dropped without a reply so that a
// non-member cannot probe room membership.
type VoiceRelay struct {
	cs    *ChatServer
	rooms *RoomManager
	log   *log.Logger
}

func NewVoiceRelay(cs *ChatServer, rooms *RoomManager, logger *log.Logger) *VoiceRelay {
	return &VoiceRelay{
		cs:    cs,
		rooms: rooms,
		log:   logger,
	}
}

func (vr *VoiceRelay) Relay(from *Client, roomId, targetUserId int, signal json.RawMessage) {
	senderMember, err := vr.rooms.IsMember(roomId, from.user.Id)
	if err != nil {
		vr.log.Println("voice relay: sender membership:", err)
		return
	}
	targetMember, err := vr.rooms.IsMember(roomId, targetUserId)
	if err != nil {
		vr.log.Println("voice relay: target membership:", err)
		return
	}

	if !senderMember || !targetMember {
		return
	}

	vr.cs.sendToUser(targetUserId, &VoiceSignalMessage{
		Type:         TypeVoiceSignal,
		RoomId:       roomId,
		FromUserId:   from.user.Id,
		FromUsername: from.user.Username,
		Signal:       signal,
	})
}

package model

import (
	"encoding/json"
	"time"
)

// client -> server message types
const (
	MsgJoin         = "join"
	MsgLeave        = "leave"
	MsgTaskUpdate   = "task_update"
	MsgChatMessage  = "chat_message"
	MsgStatusChange = "status_change"
)

// server -> client message types
const (
	MsgMemberJoined = "member_joined"
	MsgMemberLeft   = "member_left"
	MsgError        = "error"
)

// WsRequest is a message read from a websocket client.
type WsRequest struct {
	Type      string          `json:"type"`
	ProjectID uint            `json:"project"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WsEvent is a message sent to websocket clients. For rebroadcasts the
// payload is carried opaquely, stamped with the sender uid and a server-side
// timestamp.
type WsEvent struct {
	Type      string          `json:"type"`
	ProjectID uint            `json:"project,omitempty"`
	User      string          `json:"user,omitempty"`
	Time      time.Time       `json:"time"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func PublishKind(typ string) bool {
	switch typ {
	case MsgTaskUpdate, MsgChatMessage, MsgStatusChange:
		return true
	}

	return false
}

// TaskUpdatePayload and friends document the payload shapes. The router does
// not interpret them, only clients do.
type TaskUpdatePayload struct {
	TaskID  string         `json:"task_id"`
	Changes map[string]any `json:"changes,omitempty"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type StatusPayload struct {
	Status string `json:"status"`
}

package server

import (
	"time"

	"github.com/pbassett/roomrelay/internal/types"
)

// Kind discriminates wire frames. Every frame is one JSON object with
// a "type" field.
type Kind string

// Inbound kinds.
const (
	KindJoinRoom           Kind = "joinRoom"
	KindCreateRoom         Kind = "createRoom"
	KindLeaveRoom          Kind = "leaveRoom"
	KindRoomSettingsUpdate Kind = "roomSettingsUpdate"
	KindDeleteRoom         Kind = "deleteRoom"
	KindListRooms          Kind = "listRooms"
	KindRequestAIResponse  Kind = "requestAIResponse"
	KindChatMessage        Kind = "chatMessage"
)

// Outbound kinds.
const (
	KindRoomsList           Kind = "roomsList"
	KindRoomJoined          Kind = "roomJoined"
	KindRoomCreated         Kind = "roomCreated"
	KindRoomLeft            Kind = "roomLeft"
	KindRoomDeleted         Kind = "roomDeleted"
	KindMemberJoined        Kind = "memberJoined"
	KindMemberLeft          Kind = "memberLeft"
	KindRoomSettingsChanged Kind = "roomSettingsChanged"
	KindRoomError           Kind = "roomError"
	KindResponseQueueUpdate Kind = "responseQueueUpdate"
	KindQueueSuppressed     Kind = "queueSuppressed"
)

// ClientFrame is the union of all inbound frames; the dispatcher
// switches on Type and reads only the fields that kind defines.
type ClientFrame struct {
	Type                  Kind                `json:"type"`
	RoomId                string              `json:"roomId,omitempty"`
	Name                  string              `json:"name,omitempty"`
	Description           string              `json:"description,omitempty"`
	Settings              *types.RoomSettings `json:"settings,omitempty"`
	Trigger               string              `json:"trigger,omitempty"`
	Character             string              `json:"character,omitempty"`
	LatestUserMessageText string              `json:"latestUserMessageText,omitempty"`
	ChatID                string              `json:"chatID,omitempty"`
	UserInput             string              `json:"userInput,omitempty"`
	Content               string              `json:"content,omitempty"`
}

// Text returns the chat payload, whichever field the client used.
func (f ClientFrame) Text() string {
	if f.UserInput != "" {
		return f.UserInput
	}
	return f.Content
}

// Frame is any outbound wire frame.
type Frame interface {
	Kind() Kind
}

type RoomsListFrame struct {
	Type      Kind         `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Rooms     []types.Room `json:"rooms"`
}

func (f *RoomsListFrame) Kind() Kind { return f.Type }

type RoomJoinedFrame struct {
	Type        Kind               `json:"type"`
	Timestamp   time.Time          `json:"timestamp"`
	Room        types.Room         `json:"room"`
	Members     []types.Member     `json:"members"`
	ChatHistory []types.Message    `json:"chatHistory"`
	Config      types.RoomSettings `json:"config"`
}

func (f *RoomJoinedFrame) Kind() Kind { return f.Type }

type RoomCreatedFrame struct {
	Type      Kind       `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Room      types.Room `json:"room"`
}

func (f *RoomCreatedFrame) Kind() Kind { return f.Type }

type RoomLeftFrame struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"roomId"`
}

func (f *RoomLeftFrame) Kind() Kind { return f.Type }

type RoomDeletedFrame struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"roomId"`
}

func (f *RoomDeletedFrame) Kind() Kind { return f.Type }

type MemberFrame struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"roomId"`
	UserId    int       `json:"userId"`
	Username  string    `json:"username"`
}

func (f *MemberFrame) Kind() Kind { return f.Type }

type RoomSettingsChangedFrame struct {
	Type      Kind               `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	RoomId    string             `json:"roomId"`
	Settings  types.RoomSettings `json:"settings"`
}

func (f *RoomSettingsChangedFrame) Kind() Kind { return f.Type }

type RoomErrorFrame struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Action    string    `json:"action,omitempty"`
}

func (f *RoomErrorFrame) Kind() Kind { return f.Type }

type ResponseQueueUpdateFrame struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"roomId"`
	Active    bool      `json:"active"`
	Current   string    `json:"current,omitempty"`
	Remaining []string  `json:"remaining"`
}

func (f *ResponseQueueUpdateFrame) Kind() Kind { return f.Type }

type QueueSuppressedFrame struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RoomId    string    `json:"roomId"`
	Reason    string    `json:"reason"`
}

func (f *QueueSuppressedFrame) Kind() Kind { return f.Type }

type ChatMessageFrame struct {
	Type      Kind          `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RoomId    string        `json:"roomId"`
	Message   types.Message `json:"message"`
}

func (f *ChatMessageFrame) Kind() Kind { return f.Type }

func NewRoomsList(rooms []types.Room) *RoomsListFrame {
	return &RoomsListFrame{Type: KindRoomsList, Timestamp: Now(), Rooms: rooms}
}

func NewRoomJoined(room types.Room, members []types.Member, history []types.Message) *RoomJoinedFrame {
	return &RoomJoinedFrame{
		Type:        KindRoomJoined,
		Timestamp:   Now(),
		Room:        room,
		Members:     members,
		ChatHistory: history,
		Config:      room.Settings,
	}
}

func NewRoomCreated(room types.Room) *RoomCreatedFrame {
	return &RoomCreatedFrame{Type: KindRoomCreated, Timestamp: Now(), Room: room}
}

func NewRoomLeft(roomId string) *RoomLeftFrame {
	return &RoomLeftFrame{Type: KindRoomLeft, Timestamp: Now(), RoomId: roomId}
}

func NewRoomDeleted(roomId string) *RoomDeletedFrame {
	return &RoomDeletedFrame{Type: KindRoomDeleted, Timestamp: Now(), RoomId: roomId}
}

func NewMemberJoined(roomId string, userId int, username string) *MemberFrame {
	return &MemberFrame{Type: KindMemberJoined, Timestamp: Now(), RoomId: roomId, UserId: userId, Username: username}
}

func NewMemberLeft(roomId string, userId int, username string) *MemberFrame {
	return &MemberFrame{Type: KindMemberLeft, Timestamp: Now(), RoomId: roomId, UserId: userId, Username: username}
}

func NewRoomSettingsChanged(roomId string, settings types.RoomSettings) *RoomSettingsChangedFrame {
	return &RoomSettingsChangedFrame{Type: KindRoomSettingsChanged, Timestamp: Now(), RoomId: roomId, Settings: settings}
}

func NewRoomError(message, action string) *RoomErrorFrame {
	return &RoomErrorFrame{Type: KindRoomError, Timestamp: Now(), Message: message, Action: action}
}

func NewResponseQueueUpdate(roomId string, active bool, current string, remaining []string) *ResponseQueueUpdateFrame {
	if remaining == nil {
		remaining = []string{}
	}
	return &ResponseQueueUpdateFrame{
		Type:      KindResponseQueueUpdate,
		Timestamp: Now(),
		RoomId:    roomId,
		Active:    active,
		Current:   current,
		Remaining: remaining,
	}
}

func NewQueueSuppressed(roomId, reason string) *QueueSuppressedFrame {
	return &QueueSuppressedFrame{Type: KindQueueSuppressed, Timestamp: Now(), RoomId: roomId, Reason: reason}
}

func NewChatMessage(roomId string, msg types.Message) *ChatMessageFrame {
	return &ChatMessageFrame{Type: KindChatMessage, Timestamp: Now(), RoomId: roomId, Message: msg}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

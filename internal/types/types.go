package types

import (
	"time"
)

// Role is the connection-level role carried by an authenticated user.
type Role string

const (
	RoleOperator  Role = "operator"
	RoleModerator Role = "moderator"
	RoleGuest     Role = "guest"
)

// MemberRole is the per-room membership role.
type MemberRole string

const (
	MemberCreator   MemberRole = "creator"
	MemberModerator MemberRole = "moderator"
	MemberMember    MemberRole = "member"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	DisplayColor string    `json:"display_color,omitempty"`
	Role         Role      `json:"role"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Agent is an AI character configured on a room. NoneAgentId is the
// "none selected" sentinel and is never scheduled.
type Agent struct {
	Id          string `json:"id"`
	DisplayName string `json:"displayName"`
	Muted       bool   `json:"muted"`
}

const NoneAgentId = "none"

// RoomSettings is the room's agent configuration blob.
type RoomSettings struct {
	Agents    []Agent        `json:"agents"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// ActiveAgents returns the roster eligible for scheduling, excluding
// muted agents and the none sentinel.
func (s RoomSettings) ActiveAgents() []Agent {
	var active []Agent
	for _, a := range s.Agents {
		if a.Muted || a.Id == NoneAgentId {
			continue
		}
		active = append(active, a)
	}
	return active
}

type Room struct {
	Id          int          `json:"id"`
	ExternalId  string       `json:"external_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Deleted     bool         `json:"deleted,omitempty"`
	Settings    RoomSettings `json:"settings"`
	OwnerId     int          `json:"owner_id"`
	Members     []Member     `json:"members,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at,omitempty"`
}

type Member struct {
	UserId   int        `json:"user_id"`
	Username string     `json:"username"`
	Role     MemberRole `json:"role"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    int       `json:"room_id"`
	UserId    int       `json:"user_id,omitempty"`
	AgentId   string    `json:"agent_id,omitempty"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Complete  bool      `json:"complete"`
	Timestamp time.Time `json:"timestamp"`
}

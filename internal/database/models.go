package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	DisplayColor string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	Deleted     bool
	Settings    []byte
	OwnerId     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Memberships []Membership
}

type Membership struct {
	Id        int
	AccountId int
	Username  string
	RoomId    int
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id        string
	RoomId    int
	UserId    int
	AgentId   string
	Sender    string
	Content   string
	Complete  bool
	CreatedAt time.Time
}

type CreateRoomParams struct {
	Name        string
	Description string
	OwnerId     int
	ExternalId  string
	Settings    []byte
}

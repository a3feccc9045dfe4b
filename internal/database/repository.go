package database

import "database/sql"

// RelayRepository is the persistence facade. Reads run directly against
// the pool; writes are transaction-scoped and are driven through the
// write gateway, which owns the begin/commit envelope.
type RelayRepository interface {
	Ping() error
	Conn() *sql.DB

	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithMembers(roomId int) (*Room, error)
	ListRooms() ([]Room, error)
	MembershipExists(accountId, roomId int) bool
	GetMembers(roomId int) ([]Membership, error)
	GetMessages(roomId, limit int) ([]Message, error)
	GetLatestMessage(roomId int) (Message, error)

	CreateRoomTx(tx *sql.Tx, params CreateRoomParams) (Room, error)
	SoftDeleteRoomTx(tx *sql.Tx, roomId int) error
	UpdateRoomSettingsTx(tx *sql.Tx, roomId int, settings []byte) error
	CreateMembershipTx(tx *sql.Tx, accountId, roomId int, role string) (Membership, error)
	CreateMessageTx(tx *sql.Tx, msg Message) (Message, error)
	CompleteMessageTx(tx *sql.Tx, messageId, content string) error
}

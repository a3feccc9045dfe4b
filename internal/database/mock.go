package database

import (
	"database/sql"

	"github.com/stretchr/testify/mock"
)

type MockRelayRepository struct {
	mock.Mock
}

func (m *MockRelayRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRelayRepository) Conn() *sql.DB {
	args := m.Called()
	if conn, ok := args.Get(0).(*sql.DB); ok {
		return conn
	}
	return nil
}
func (m *MockRelayRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRelayRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRelayRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRelayRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	args := m.Called(roomId)
	if room, ok := args.Get(0).(*Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRelayRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRelayRepository) MembershipExists(accountId, roomId int) bool {
	args := m.Called(accountId, roomId)
	return args.Bool(0)
}
func (m *MockRelayRepository) GetMembers(roomId int) ([]Membership, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockRelayRepository) GetMessages(roomId, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRelayRepository) GetLatestMessage(roomId int) (Message, error) {
	args := m.Called(roomId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRelayRepository) CreateRoomTx(tx *sql.Tx, params CreateRoomParams) (Room, error) {
	args := m.Called(tx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRelayRepository) SoftDeleteRoomTx(tx *sql.Tx, roomId int) error {
	args := m.Called(tx, roomId)
	return args.Error(0)
}
func (m *MockRelayRepository) UpdateRoomSettingsTx(tx *sql.Tx, roomId int, settings []byte) error {
	args := m.Called(tx, roomId, settings)
	return args.Error(0)
}
func (m *MockRelayRepository) CreateMembershipTx(tx *sql.Tx, accountId, roomId int, role string) (Membership, error) {
	args := m.Called(tx, accountId, roomId, role)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockRelayRepository) CreateMessageTx(tx *sql.Tx, msg Message) (Message, error) {
	args := m.Called(tx, msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRelayRepository) CompleteMessageTx(tx *sql.Tx, messageId, content string) error {
	args := m.Called(tx, messageId, content)
	return args.Error(0)
}

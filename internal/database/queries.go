package database

import (
	"database/sql"
	"time"
)

func (db *PgRelayRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, display_color, role FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.DisplayColor,
		&user.Role,
	)

	return user, err
}

func (db *PgRelayRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, display_color, role FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.DisplayColor,
		&user.Role,
	)

	return user, err
}

func (db *PgRelayRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, deleted, settings, owner_id, created_at, updated_at "+
			"FROM rooms WHERE external_id = $1 AND NOT deleted LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.Deleted,
		&room.Settings,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgRelayRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	query := `
		SELECT
				r.id,
				r.external_id,
				r.name,
				r.description,
				r.deleted,
				r.settings,
				r.owner_id,
				r.created_at,
				r.updated_at,
				m.id,
				m.account_id,
				a.username,
				m.role,
				m.created_at
		FROM rooms r
		LEFT JOIN memberships m ON m.room_id = r.id
		LEFT JOIN accounts a ON a.id = m.account_id
		WHERE r.id = $1`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var r Room
		var memId, memAccountId sql.NullInt64
		var memUsername, memRole sql.NullString
		var memCreatedAt sql.NullTime

		if err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Name,
			&r.Description,
			&r.Deleted,
			&r.Settings,
			&r.OwnerId,
			&r.CreatedAt,
			&r.UpdatedAt,
			&memId,
			&memAccountId,
			&memUsername,
			&memRole,
			&memCreatedAt,
		); err != nil {
			return nil, err
		}

		if room == nil {
			room = &r
		}

		if memId.Valid {
			room.Memberships = append(room.Memberships, Membership{
				Id:        int(memId.Int64),
				AccountId: int(memAccountId.Int64),
				Username:  memUsername.String,
				RoomId:    room.Id,
				Role:      memRole.String,
				CreatedAt: memCreatedAt.Time,
			})
		}
	}

	if room == nil {
		return nil, sql.ErrNoRows
	}

	return room, rows.Err()
}

func (db *PgRelayRepository) ListRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, name, description, settings, owner_id, created_at, updated_at " +
			"FROM rooms WHERE NOT deleted ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Name,
			&r.Description,
			&r.Settings,
			&r.OwnerId,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (db *PgRelayRepository) MembershipExists(accountId, roomId int) bool {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM memberships WHERE account_id = $1 AND room_id = $2)",
		accountId, roomId,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false
	}
	return exists
}

func (db *PgRelayRepository) GetMembers(roomId int) ([]Membership, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.account_id, a.username, m.room_id, m.role, m.created_at "+
			"FROM memberships m JOIN accounts a ON a.id = m.account_id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(
			&m.Id,
			&m.AccountId,
			&m.Username,
			&m.RoomId,
			&m.Role,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgRelayRepository) GetMessages(roomId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, room_id, COALESCE(user_id, 0), agent_id, sender, content, complete, created_at "+
			"FROM messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2",
		roomId, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.RoomId,
			&m.UserId,
			&m.AgentId,
			&m.Sender,
			&m.Content,
			&m.Complete,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}

func (db *PgRelayRepository) GetLatestMessage(roomId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, COALESCE(user_id, 0), agent_id, sender, content, complete, created_at "+
			"FROM messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT 1",
		roomId,
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.AgentId,
		&m.Sender,
		&m.Content,
		&m.Complete,
		&m.CreatedAt,
	)

	return m, err
}

func (db *PgRelayRepository) CreateRoomTx(tx *sql.Tx, params CreateRoomParams) (Room, error) {
	settings := params.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, name, description, settings, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, external_id, name, description, deleted, settings, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Description,
		settings,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.Deleted,
		&room.Settings,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

// SoftDeleteRoomTx marks a room deleted. The flag is never cleared.
func (db *PgRelayRepository) SoftDeleteRoomTx(tx *sql.Tx, roomId int) error {
	_, err := tx.Exec(
		"UPDATE rooms SET deleted = TRUE, updated_at = $2 WHERE id = $1",
		roomId, time.Now().UTC(),
	)
	return err
}

func (db *PgRelayRepository) UpdateRoomSettingsTx(tx *sql.Tx, roomId int, settings []byte) error {
	_, err := tx.Exec(
		"UPDATE rooms SET settings = $2, updated_at = $3 WHERE id = $1 AND NOT deleted",
		roomId, settings, time.Now().UTC(),
	)
	return err
}

func (db *PgRelayRepository) CreateMembershipTx(tx *sql.Tx, accountId, roomId int, role string) (Membership, error) {
	res := tx.QueryRow(
		"INSERT INTO memberships (account_id, room_id, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) "+
			"ON CONFLICT (account_id, room_id) DO UPDATE SET updated_at = $4 "+
			"RETURNING id, account_id, room_id, role",
		accountId, roomId, role, time.Now().UTC(),
	)

	var m Membership
	err := res.Scan(
		&m.Id,
		&m.AccountId,
		&m.RoomId,
		&m.Role,
	)

	return m, err
}

func (db *PgRelayRepository) CreateMessageTx(tx *sql.Tx, msg Message) (Message, error) {
	var userId any
	if msg.UserId != 0 {
		userId = msg.UserId
	}

	res := tx.QueryRow(
		"INSERT INTO messages (id, room_id, user_id, agent_id, sender, content, complete, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) "+
			"RETURNING id, room_id, COALESCE(user_id, 0), agent_id, sender, content, complete, created_at",
		msg.Id,
		msg.RoomId,
		userId,
		msg.AgentId,
		msg.Sender,
		msg.Content,
		msg.Complete,
		msg.CreatedAt,
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.AgentId,
		&m.Sender,
		&m.Content,
		&m.Complete,
		&m.CreatedAt,
	)

	return m, err
}

func (db *PgRelayRepository) CompleteMessageTx(tx *sql.Tx, messageId, content string) error {
	_, err := tx.Exec(
		"UPDATE messages SET content = $2, complete = TRUE WHERE id = $1",
		messageId, content,
	)
	return err
}

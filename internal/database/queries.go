package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

func (db *PgFiresideRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgFiresideRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgFiresideRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func scanParticipant(row *sql.Row) (Participant, error) {
	var p Participant
	var accountId sql.NullInt64
	var sessionKey, name sql.NullString

	err := row.Scan(&p.Id, &accountId, &sessionKey, &name)
	if err != nil {
		return Participant{}, err
	}

	p.AccountId = int(accountId.Int64)
	p.SessionKey = sessionKey.String
	p.Name = name.String
	return p, nil
}

func (db *PgFiresideRepository) EnsureParticipantForAccount(accountId int, name string) (Participant, error) {
	p, err := scanParticipant(db.conn.QueryRow(
		"SELECT id, account_id, session_key, name FROM participants "+
			"WHERE account_id = $1 LIMIT 1",
		accountId,
	))
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return Participant{}, err
	}

	return scanParticipant(db.conn.QueryRow(
		"INSERT INTO participants (account_id, name) VALUES ($1, $2) "+
			"RETURNING id, account_id, session_key, name",
		accountId,
		name,
	))
}

func (db *PgFiresideRepository) EnsureParticipantForSession(sessionKey string) (Participant, error) {
	p, err := scanParticipant(db.conn.QueryRow(
		"SELECT id, account_id, session_key, name FROM participants "+
			"WHERE session_key = $1 LIMIT 1",
		sessionKey,
	))
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return Participant{}, err
	}

	return scanParticipant(db.conn.QueryRow(
		"INSERT INTO participants (session_key) VALUES ($1) "+
			"RETURNING id, account_id, session_key, name",
		sessionKey,
	))
}

func (db *PgFiresideRepository) GetParticipant(participantId int) (Participant, error) {
	return scanParticipant(db.conn.QueryRow(
		"SELECT id, account_id, session_key, name FROM participants "+
			"WHERE id = $1 LIMIT 1",
		participantId,
	))
}

// CreateRoom inserts the room and its owner membership in one
// transaction. A colliding room id is retried once with a fresh id.
func (db *PgFiresideRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	room, err := db.createRoom(params)
	if err != nil && isUniqueViolation(err) {
		params.Id = GenerateRoomId()
		room, err = db.createRoom(params)
	}
	return room, err
}

func (db *PgFiresideRepository) createRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var room Room
	err = tx.QueryRow(
		"INSERT INTO rooms (id, owner_id, config, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, owner_id, config, created_at",
		params.Id,
		params.OwnerId,
		params.Config,
		now,
	).Scan(&room.Id, &room.OwnerId, &room.Config, &room.CreatedAt)
	if err != nil {
		return Room{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO memberships (room_id, participant_id, name, role, joined_at) "+
			"VALUES ($1, $2, $3, $4, $5)",
		room.Id,
		params.OwnerId,
		params.OwnerName,
		"o",
		now,
	)
	if err != nil {
		return Room{}, err
	}

	return room, tx.Commit()
}

func (db *PgFiresideRepository) GetRoom(roomId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, owner_id, config, created_at FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(&room.Id, &room.OwnerId, &room.Config, &room.CreatedAt)
	return room, err
}

func (db *PgFiresideRepository) SaveRoomConfig(roomId string, config []byte) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET config = $2 WHERE id = $1",
		roomId,
		config,
	)
	return err
}

func (db *PgFiresideRepository) CreateMembership(roomId string, participantId int, role, name string) (Membership, error) {
	row := db.conn.QueryRow(
		"INSERT INTO memberships (room_id, participant_id, name, role, joined_at) "+
			"VALUES ($1, $2, $3, $4, $5) "+
			"RETURNING id, room_id, participant_id, COALESCE(name, ''), role, onboarding_complete, joined_at",
		roomId,
		participantId,
		name,
		role,
		time.Now().UTC(),
	)

	var m Membership
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.ParticipantId,
		&m.Name,
		&m.Role,
		&m.OnboardingComplete,
		&m.JoinedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return Membership{}, ErrDuplicateMembership
	}

	return m, err
}

const membershipColumns = "m.id, m.room_id, m.participant_id, COALESCE(m.name, ''), m.role, " +
	"m.onboarding_complete, m.joined_at, COALESCE(p.name, '')"

func (db *PgFiresideRepository) GetMembership(roomId string, participantId int) (Membership, error) {
	row := db.conn.QueryRow(
		"SELECT "+membershipColumns+" FROM memberships m "+
			"JOIN participants p ON p.id = m.participant_id "+
			"WHERE m.room_id = $1 AND m.participant_id = $2 LIMIT 1",
		roomId,
		participantId,
	)

	var m Membership
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.ParticipantId,
		&m.Name,
		&m.Role,
		&m.OnboardingComplete,
		&m.JoinedAt,
		&m.ParticipantName,
	)

	return m, err
}

func (db *PgFiresideRepository) ListMemberships(roomId string) ([]Membership, error) {
	rows, err := db.conn.Query(
		"SELECT "+membershipColumns+" FROM memberships m "+
			"JOIN participants p ON p.id = m.participant_id "+
			"WHERE m.room_id = $1 ORDER BY m.joined_at",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err = rows.Scan(
			&m.Id,
			&m.RoomId,
			&m.ParticipantId,
			&m.Name,
			&m.Role,
			&m.OnboardingComplete,
			&m.JoinedAt,
			&m.ParticipantName,
		); err != nil {
			break
		}

		memberships = append(memberships, m)
	}
	return memberships, err
}

func (db *PgFiresideRepository) SetMembershipOnboarded(roomId string, participantId int, complete bool) error {
	_, err := db.conn.Exec(
		"UPDATE memberships SET onboarding_complete = $3 WHERE room_id = $1 AND participant_id = $2",
		roomId,
		participantId,
		complete,
	)
	return err
}

func (db *PgFiresideRepository) CreateMessage(msg Message) (int, error) {
	var participantId any
	if msg.ParticipantId != 0 {
		participantId = msg.ParticipantId
	}
	var peerId any
	if msg.PeerId != "" {
		peerId = msg.PeerId
	}

	var id int
	err := db.conn.QueryRow(
		"INSERT INTO messages (room_id, participant_id, peer_id, type, payload, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		msg.RoomId,
		participantId,
		peerId,
		msg.Type,
		msg.Payload,
		msg.CreatedAt,
	).Scan(&id)

	return id, err
}

func (db *PgFiresideRepository) ListMessages(roomId string, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Second)
	}

	rows, err := db.conn.Query(
		"SELECT id, room_id, COALESCE(participant_id, 0), COALESCE(peer_id, ''), type, payload, created_at "+
			"FROM messages WHERE room_id = $1 AND created_at < $2 "+
			"ORDER BY created_at DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.ParticipantId,
			&msg.PeerId,
			&msg.Type,
			&msg.Payload,
			&msg.CreatedAt,
		); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgFiresideRepository) CountMessages(roomId string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE room_id = $1",
		roomId,
	).Scan(&count)
	return count, err
}

func scanRecording(scan func(dest ...any) error) (Recording, error) {
	var rec Recording
	err := scan(
		&rec.Id,
		&rec.ParticipantId,
		&rec.RoomId,
		&rec.Type,
		&rec.Filesize,
		&rec.Started,
		&rec.Ended,
	)
	return rec, err
}

const recordingColumns = "id, participant_id, room_id, type, filesize, started, ended"

func (db *PgFiresideRepository) CreateRecording(params CreateRecordingParams) (Recording, error) {
	var started sql.NullTime
	if params.Started != nil {
		started = sql.NullTime{Time: *params.Started, Valid: true}
	}

	row := db.conn.QueryRow(
		"INSERT INTO recordings (id, participant_id, room_id, type, filesize, started) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+recordingColumns,
		params.Id,
		params.ParticipantId,
		params.RoomId,
		params.Type,
		params.Filesize,
		started,
	)

	return scanRecording(row.Scan)
}

func (db *PgFiresideRepository) GetRecording(recordingId string) (Recording, error) {
	row := db.conn.QueryRow(
		"SELECT "+recordingColumns+" FROM recordings WHERE id = $1 LIMIT 1",
		recordingId,
	)
	return scanRecording(row.Scan)
}

func (db *PgFiresideRepository) ListRecordings(roomId string, participantId int) ([]Recording, error) {
	rows, err := db.conn.Query(
		"SELECT "+recordingColumns+" FROM recordings "+
			"WHERE room_id = $1 AND participant_id = $2 ORDER BY started DESC NULLS LAST",
		roomId,
		participantId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recordings = make([]Recording, 0)
	for rows.Next() {
		rec, err := scanRecording(rows.Scan)
		if err != nil {
			return recordings, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, nil
}

func (db *PgFiresideRepository) LatestRecording(roomId string, participantId int) (*Recording, error) {
	row := db.conn.QueryRow(
		"SELECT "+recordingColumns+" FROM recordings "+
			"WHERE room_id = $1 AND participant_id = $2 "+
			"ORDER BY started DESC NULLS LAST LIMIT 1",
		roomId,
		participantId,
	)

	rec, err := scanRecording(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (db *PgFiresideRepository) UpdateRecording(recordingId string, params UpdateRecordingParams) error {
	_, err := db.conn.Exec(
		"UPDATE recordings SET "+
			"type = COALESCE($2, type), "+
			"filesize = COALESCE($3, filesize), "+
			"started = COALESCE($4, started), "+
			"ended = COALESCE($5, ended) "+
			"WHERE id = $1",
		recordingId,
		params.Type,
		params.Filesize,
		params.Started,
		params.Ended,
	)
	return err
}

func (db *PgFiresideRepository) RecordingBelongsTo(recordingId string, participantId int) bool {
	var id string
	err := db.conn.QueryRow(
		"SELECT id FROM recordings WHERE id = $1 AND participant_id = $2 LIMIT 1",
		recordingId,
		participantId,
	).Scan(&id)

	return err == nil
}

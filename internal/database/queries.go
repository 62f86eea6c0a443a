package database

import (
	"math/rand"
	"time"
)

const (
	minTitanNumber = 10000
	maxTitanNumber = 99999

	// maxTitanAttempts bounds the rejection-sampling loop in CreateUser.
	maxTitanAttempts = 10000
)

// CreateUser inserts a new account with a freshly allocated Titan number.
// The number is drawn by rejection sampling against the UNIQUE constraint so
// that allocation and insert are a single atomic operation even under
// concurrent registrations.
func (db *SqliteTitanRepository) CreateUser(params CreateUserParams) (User, error) {
	createdAt := time.Now().UTC()

	for attempt := 0; attempt < maxTitanAttempts; attempt++ {
		titanNumber := minTitanNumber + rand.Intn(maxTitanNumber-minTitanNumber+1)

		res, err := db.conn.Exec(
			"INSERT INTO users (username, password_hash, titan_number, full_name, created_at) "+
				"VALUES (?, ?, ?, ?, ?)",
			params.Username,
			params.PasswordHash,
			titanNumber,
			params.FullName,
			createdAt,
		)
		if err != nil {
			if isUniqueViolation(err, "users.username") {
				return User{}, ErrDuplicateUsername
			}
			if isUniqueViolation(err, "users.titan_number") {
				continue
			}
			return User{}, err
		}

		id, err := res.LastInsertId()
		if err != nil {
			return User{}, err
		}

		return User{
			Id:           int(id),
			Username:     params.Username,
			PasswordHash: params.PasswordHash,
			TitanNumber:  titanNumber,
			FullName:     params.FullName,
			CreatedAt:    createdAt,
		}, nil
	}

	return User{}, ErrTitanNumbersExhausted
}

const userColumns = "id, username, password_hash, titan_number, full_name, is_admin, blog_url, disabled, created_at, last_login_at"

func (db *SqliteTitanRepository) scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.PasswordHash,
		&u.TitanNumber,
		&u.FullName,
		&u.IsAdmin,
		&u.BlogUrl,
		&u.Disabled,
		&u.CreatedAt,
		&u.LastLoginAt,
	)

	return u, err
}

func (db *SqliteTitanRepository) GetUserById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id,
	)

	return db.scanUser(row)
}

func (db *SqliteTitanRepository) GetUserByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", username,
	)

	return db.scanUser(row)
}

func (db *SqliteTitanRepository) GetUserByTitanNumber(titanNumber int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE titan_number = ? LIMIT 1", titanNumber,
	)

	return db.scanUser(row)
}

func (db *SqliteTitanRepository) UpdateUserBlog(userId int, blogUrl string) error {
	_, err := db.conn.Exec("UPDATE users SET blog_url = ? WHERE id = ?", blogUrl, userId)

	return err
}

func (db *SqliteTitanRepository) UpdateLastLogin(userId int) error {
	_, err := db.conn.Exec(
		"UPDATE users SET last_login_at = ? WHERE id = ?", time.Now().UTC(), userId,
	)

	return err
}

// DisableUser soft-disables an account. Rows are never hard-deleted so that
// message history keeps resolving sender and recipient ids.
func (db *SqliteTitanRepository) DisableUser(userId int) error {
	_, err := db.conn.Exec("UPDATE users SET disabled = 1 WHERE id = ?", userId)

	return err
}

func (db *SqliteTitanRepository) CreateSession(sessionId string, userId int) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(
		"INSERT INTO sessions (session_id, user_id, established_at, last_seen_at) VALUES (?, ?, ?, ?)",
		sessionId,
		userId,
		now,
		now,
	)

	return err
}

func (db *SqliteTitanRepository) DeleteSession(sessionId string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE session_id = ?", sessionId)

	return err
}

func (db *SqliteTitanRepository) TouchSession(sessionId string) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET last_seen_at = ? WHERE session_id = ?", time.Now().UTC(), sessionId,
	)

	return err
}

func (db *SqliteTitanRepository) CreatePrivateMessage(params CreatePrivateMessageParams) (PrivateMessage, error) {
	sentAt := time.Now().UTC()
	res, err := db.conn.Exec(
		"INSERT INTO private_messages (sender_id, recipient_id, body, sent_at) VALUES (?, ?, ?, ?)",
		params.SenderId,
		params.RecipientId,
		params.Body,
		sentAt,
	)
	if err != nil {
		return PrivateMessage{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return PrivateMessage{}, err
	}

	return PrivateMessage{
		Id:          int(id),
		SenderId:    params.SenderId,
		RecipientId: params.RecipientId,
		Body:        params.Body,
		SentAt:      sentAt,
	}, nil
}

func (db *SqliteTitanRepository) MarkMessageDelivered(messageId int) error {
	_, err := db.conn.Exec("UPDATE private_messages SET delivered = 1 WHERE id = ?", messageId)

	return err
}

// GetPrivateMessages returns the most recent limit messages exchanged between
// the two users, ordered oldest to newest.
func (db *SqliteTitanRepository) GetPrivateMessages(userId, otherUserId, limit int) ([]PrivateMessage, error) {
	rows, err := db.conn.Query(
		`SELECT id, sender_id, sender_username, recipient_id, recipient_username, body, sent_at, delivered FROM (
			SELECT pm.id, pm.sender_id, u1.username AS sender_username,
			       pm.recipient_id, u2.username AS recipient_username,
			       pm.body, pm.sent_at, pm.delivered
			FROM private_messages pm
			JOIN users u1 ON pm.sender_id = u1.id
			JOIN users u2 ON pm.recipient_id = u2.id
			WHERE (pm.sender_id = ? AND pm.recipient_id = ?)
			   OR (pm.sender_id = ? AND pm.recipient_id = ?)
			ORDER BY pm.id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		userId, otherUserId, otherUserId, userId, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]PrivateMessage, 0, limit)
	for rows.Next() {
		var msg PrivateMessage
		if err = rows.Scan(
			&msg.Id,
			&msg.SenderId,
			&msg.SenderUsername,
			&msg.RecipientId,
			&msg.RecipientUsername,
			&msg.Body,
			&msg.SentAt,
			&msg.Delivered,
		); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CreateRoom inserts the room and the creator's implicit membership in one
// transaction.
func (db *SqliteTitanRepository) CreateRoom(params CreateRoomParams) (ChatRoom, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return ChatRoom{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	createdAt := time.Now().UTC()
	res, err := tx.Exec(
		"INSERT INTO chat_rooms (name, description, kind, password_hash, creator_id, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		params.Name,
		params.Description,
		params.Kind,
		params.PasswordHash,
		params.CreatorId,
		createdAt,
	)
	if err != nil {
		return ChatRoom{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ChatRoom{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)",
		id,
		params.CreatorId,
		createdAt,
	)
	if err != nil {
		return ChatRoom{}, err
	}

	if err = tx.Commit(); err != nil {
		return ChatRoom{}, err
	}

	return ChatRoom{
		Id:           int(id),
		Name:         params.Name,
		Description:  params.Description,
		Kind:         params.Kind,
		PasswordHash: params.PasswordHash,
		CreatorId:    params.CreatorId,
		MemberCount:  1,
		CreatedAt:    createdAt,
	}, nil
}

func (db *SqliteTitanRepository) GetRoomById(id int) (ChatRoom, error) {
	row := db.conn.QueryRow(
		`SELECT cr.id, cr.name, cr.description, cr.kind, cr.password_hash, cr.creator_id,
		        u.username, cr.created_at,
		        (SELECT COUNT(*) FROM room_members WHERE room_id = cr.id)
		 FROM chat_rooms cr
		 JOIN users u ON cr.creator_id = u.id
		 WHERE cr.id = ? LIMIT 1`,
		id,
	)

	var room ChatRoom
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
		&room.Kind,
		&room.PasswordHash,
		&room.CreatorId,
		&room.CreatorUsername,
		&room.CreatedAt,
		&room.MemberCount,
	)

	return room, err
}

func (db *SqliteTitanRepository) ListRooms() ([]ChatRoom, error) {
	rows, err := db.conn.Query(
		`SELECT cr.id, cr.name, cr.description, cr.kind, cr.password_hash, cr.creator_id,
		        u.username, cr.created_at,
		        (SELECT COUNT(*) FROM room_members WHERE room_id = cr.id)
		 FROM chat_rooms cr
		 JOIN users u ON cr.creator_id = u.id
		 ORDER BY cr.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []ChatRoom
	for rows.Next() {
		var room ChatRoom
		if err = rows.Scan(
			&room.Id,
			&room.Name,
			&room.Description,
			&room.Kind,
			&room.PasswordHash,
			&room.CreatorId,
			&room.CreatorUsername,
			&room.CreatedAt,
			&room.MemberCount,
		); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// DeleteRoom removes the room and cascades to its messages and memberships.
func (db *SqliteTitanRepository) DeleteRoom(id int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM room_messages WHERE room_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM room_members WHERE room_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM chat_rooms WHERE id = ?", id); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *SqliteTitanRepository) AddRoomMember(roomId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)",
		roomId,
		userId,
		time.Now().UTC(),
	)

	return err
}

func (db *SqliteTitanRepository) RemoveRoomMember(roomId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM room_members WHERE room_id = ? AND user_id = ?", roomId, userId,
	)

	return err
}

func (db *SqliteTitanRepository) RoomMemberExists(roomId, userId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM room_members WHERE room_id = ? AND user_id = ?", roomId, userId,
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (db *SqliteTitanRepository) GetRoomMemberIds(roomId int) ([]int, error) {
	rows, err := db.conn.Query("SELECT user_id FROM room_members WHERE room_id = ?", roomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *SqliteTitanRepository) CreateRoomMessage(params CreateRoomMessageParams) (RoomMessage, error) {
	sentAt := time.Now().UTC()
	res, err := db.conn.Exec(
		"INSERT INTO room_messages (room_id, sender_id, body, sent_at) VALUES (?, ?, ?, ?)",
		params.RoomId,
		params.SenderId,
		params.Body,
		sentAt,
	)
	if err != nil {
		return RoomMessage{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return RoomMessage{}, err
	}

	return RoomMessage{
		Id:       int(id),
		RoomId:   params.RoomId,
		SenderId: params.SenderId,
		Body:     params.Body,
		SentAt:   sentAt,
	}, nil
}

func (db *SqliteTitanRepository) GetRoomMessages(roomId, limit int) ([]RoomMessage, error) {
	rows, err := db.conn.Query(
		`SELECT id, room_id, sender_id, username, titan_number, body, sent_at FROM (
			SELECT rm.id, rm.room_id, rm.sender_id, u.username, u.titan_number, rm.body, rm.sent_at
			FROM room_messages rm
			JOIN users u ON rm.sender_id = u.id
			WHERE rm.room_id = ?
			ORDER BY rm.id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		roomId, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]RoomMessage, 0, limit)
	for rows.Next() {
		var msg RoomMessage
		if err = rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.SenderUsername,
			&msg.SenderTitanNumber,
			&msg.Body,
			&msg.SentAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *SqliteTitanRepository) CreateEntry(params CreateEntryParams) (RepositoryEntry, error) {
	uploadedAt := time.Now().UTC()
	res, err := db.conn.Exec(
		"INSERT INTO repository_entries (name, description, category, version, author_id, file_size, status, uploaded_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		params.Name,
		params.Description,
		params.Category,
		params.Version,
		params.AuthorId,
		params.FileSize,
		StatusPending,
		uploadedAt,
	)
	if err != nil {
		return RepositoryEntry{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return RepositoryEntry{}, err
	}

	return RepositoryEntry{
		Id:          int(id),
		Name:        params.Name,
		Description: params.Description,
		Category:    params.Category,
		Version:     params.Version,
		AuthorId:    params.AuthorId,
		FileSize:    params.FileSize,
		Status:      StatusPending,
		UploadedAt:  uploadedAt,
	}, nil
}

const entryColumns = `e.id, e.name, e.description, e.category, e.version, e.author_id, u.username,
	e.stored_file_path, e.file_size, e.status, e.download_count, e.uploaded_at, e.approved_at, e.approved_by`

func scanEntry(row interface{ Scan(...any) error }) (RepositoryEntry, error) {
	var e RepositoryEntry
	err := row.Scan(
		&e.Id,
		&e.Name,
		&e.Description,
		&e.Category,
		&e.Version,
		&e.AuthorId,
		&e.AuthorUsername,
		&e.StoredFilePath,
		&e.FileSize,
		&e.Status,
		&e.DownloadCount,
		&e.UploadedAt,
		&e.ApprovedAt,
		&e.ApprovedBy,
	)

	return e, err
}

func (db *SqliteTitanRepository) GetEntryById(id int) (RepositoryEntry, error) {
	row := db.conn.QueryRow(
		"SELECT "+entryColumns+" FROM repository_entries e JOIN users u ON e.author_id = u.id "+
			"WHERE e.id = ? LIMIT 1",
		id,
	)

	return scanEntry(row)
}

func (db *SqliteTitanRepository) UpdateEntryFilePath(id int, path string) error {
	_, err := db.conn.Exec("UPDATE repository_entries SET stored_file_path = ? WHERE id = ?", path, id)

	return err
}

// ApproveEntry transitions a pending entry to approved. Approved entries are
// never moved back to pending.
func (db *SqliteTitanRepository) ApproveEntry(id, adminId int) error {
	_, err := db.conn.Exec(
		"UPDATE repository_entries SET status = ?, approved_by = ?, approved_at = ? WHERE id = ? AND status = ?",
		StatusApproved,
		adminId,
		time.Now().UTC(),
		id,
		StatusPending,
	)

	return err
}

func (db *SqliteTitanRepository) queryEntries(query string, args ...any) ([]RepositoryEntry, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]RepositoryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (db *SqliteTitanRepository) ListApprovedEntries(category string) ([]RepositoryEntry, error) {
	query := "SELECT " + entryColumns + " FROM repository_entries e JOIN users u ON e.author_id = u.id " +
		"WHERE e.status = ?"
	args := []any{StatusApproved}

	if category != "" {
		query += " AND e.category = ?"
		args = append(args, category)
	}
	query += " ORDER BY e.uploaded_at DESC"

	return db.queryEntries(query, args...)
}

func (db *SqliteTitanRepository) ListPendingEntries() ([]RepositoryEntry, error) {
	return db.queryEntries(
		"SELECT "+entryColumns+" FROM repository_entries e JOIN users u ON e.author_id = u.id "+
			"WHERE e.status = ? ORDER BY e.uploaded_at DESC",
		StatusPending,
	)
}

// SearchEntries performs a substring match over name and description of
// approved entries, optionally restricted to one category.
func (db *SqliteTitanRepository) SearchEntries(query, category string) ([]RepositoryEntry, error) {
	pattern := "%" + query + "%"
	q := "SELECT " + entryColumns + " FROM repository_entries e JOIN users u ON e.author_id = u.id " +
		"WHERE e.status = ? AND (e.name LIKE ? OR e.description LIKE ?)"
	args := []any{StatusApproved, pattern, pattern}

	if category != "" {
		q += " AND e.category = ?"
		args = append(args, category)
	}
	q += " ORDER BY e.uploaded_at DESC"

	return db.queryEntries(q, args...)
}

func (db *SqliteTitanRepository) IncrementEntryDownloads(id int) error {
	_, err := db.conn.Exec(
		"UPDATE repository_entries SET download_count = download_count + 1 WHERE id = ?", id,
	)

	return err
}

func (db *SqliteTitanRepository) DeleteEntry(id int) error {
	_, err := db.conn.Exec("DELETE FROM repository_entries WHERE id = ?", id)

	return err
}

func (db *SqliteTitanRepository) GetRepositoryStats() (RepositoryStats, error) {
	stats := RepositoryStats{Categories: make(map[string]int)}

	row := db.conn.QueryRow(
		`SELECT
			COUNT(CASE WHEN status = 'approved' THEN 1 END),
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'approved' THEN download_count ELSE 0 END), 0)
		 FROM repository_entries`,
	)
	if err := row.Scan(&stats.TotalApproved, &stats.TotalPending, &stats.TotalDownloads); err != nil {
		return RepositoryStats{}, err
	}

	rows, err := db.conn.Query(
		"SELECT category, COUNT(*) FROM repository_entries WHERE status = ? GROUP BY category",
		StatusApproved,
	)
	if err != nil {
		return RepositoryStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			count    int
		)
		if err = rows.Scan(&category, &count); err != nil {
			return RepositoryStats{}, err
		}

		stats.Categories[category] = count
	}

	return stats, rows.Err()
}

var _ TitanRepository = (*SqliteTitanRepository)(nil)

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	foreignKeyViolation = "23503"

	participantColumns = "p.room_id, p.account_id, a.username, a.name, p.selected_letter_id, " +
		"COALESCE(l.heading, ''), COALESCE(l.in_use, FALSE), p.is_ready, p.joined_at"

	drawResultQuery = `
		SELECT
				d.id,
				d.draw_id,
				d.room_id,
				d.room_name,
				d.giver_id,
				g.name AS giver_name,
				d.receiver_id,
				rc.name AS receiver_name,
				d.letter_id,
				l.heading,
				l.message,
				d.drawn_at
		FROM draw_results d
		JOIN accounts g ON g.id = d.giver_id
		JOIN accounts rc ON rc.id = d.receiver_id
		JOIN letters l ON l.id = d.letter_id
`
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (db *PgRepository) GetUser(ctx context.Context, userId int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, name, created_at FROM accounts WHERE id = $1 LIMIT 1",
		userId,
	)

	var u User
	err := row.Scan(&u.Id, &u.Username, &u.Name, &u.CreatedAt)

	return u, notFound(err)
}

func (db *PgRepository) GetLetter(ctx context.Context, letterId int) (Letter, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, owner_id, heading, message, in_use, created_at FROM letters WHERE id = $1 LIMIT 1",
		letterId,
	)

	var l Letter
	err := row.Scan(&l.Id, &l.OwnerId, &l.Heading, &l.Message, &l.InUse, &l.CreatedAt)

	return l, notFound(err)
}

func (db *PgRepository) ListAvailableLetters(ctx context.Context, ownerId int) ([]Letter, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, owner_id, heading, message, in_use, created_at FROM letters "+
			"WHERE owner_id = $1 AND NOT in_use ORDER BY id DESC",
		ownerId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	letters := make([]Letter, 0)
	for rows.Next() {
		var l Letter
		if err := rows.Scan(&l.Id, &l.OwnerId, &l.Heading, &l.Message, &l.InUse, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan letter: %w", err)
		}
		letters = append(letters, l)
	}

	return letters, rows.Err()
}

func (db *PgRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	var room Room
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRowContext(ctx,
			"INSERT INTO rooms (name, secret, owner_id, created_at, updated_at) "+
				"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, secret, owner_id, created_at, updated_at",
			params.Name,
			params.Secret,
			params.OwnerId,
			now,
			now,
		).Scan(
			&room.Id,
			&room.Name,
			&room.Secret,
			&room.OwnerId,
			&room.CreatedAt,
			&room.UpdatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO participants (room_id, account_id, joined_at) VALUES ($1, $2, $3)",
			room.Id,
			params.OwnerId,
			now,
		)
		if err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, "SELECT name FROM accounts WHERE id = $1", params.OwnerId).
			Scan(&room.OwnerName)
	})
	if isForeignKeyViolation(err) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}

	return room, nil
}

func getRoom(ctx context.Context, q queryer, roomId int) (Room, error) {
	row := q.QueryRowContext(ctx,
		"SELECT r.id, r.name, r.secret, r.owner_id, a.name, r.created_at, r.updated_at "+
			"FROM rooms r JOIN accounts a ON a.id = r.owner_id WHERE r.id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Secret,
		&room.OwnerId,
		&room.OwnerName,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, notFound(err)
}

func (db *PgRepository) GetRoom(ctx context.Context, roomId int) (Room, error) {
	return getRoom(ctx, db.conn, roomId)
}

func (db *PgRepository) ListRooms(ctx context.Context, viewerId int) ([]RoomSummary, error) {
	query := `
		SELECT
				r.id,
				r.name,
				r.owner_id,
				a.name AS owner_name,
				r.created_at,
				(SELECT COUNT(*) FROM participants p WHERE p.room_id = r.id) AS participant_count,
				EXISTS (SELECT 1 FROM participants p WHERE p.room_id = r.id AND p.account_id = $1) AS is_joined
		FROM rooms r
		JOIN accounts a ON a.id = r.owner_id
		ORDER BY r.id DESC;
`

	rows, err := db.conn.QueryContext(ctx, query, viewerId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]RoomSummary, 0)
	for rows.Next() {
		var r RoomSummary
		if err := rows.Scan(
			&r.Id,
			&r.Name,
			&r.OwnerId,
			&r.OwnerName,
			&r.CreatedAt,
			&r.ParticipantCount,
			&r.IsJoined,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (db *PgRepository) DeleteRoom(ctx context.Context, roomId int, purgeResults bool) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if purgeResults {
			if _, err := tx.ExecContext(ctx, "DELETE FROM draw_results WHERE room_id = $1", roomId); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM participants WHERE room_id = $1", roomId); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", roomId)
		if err != nil {
			return err
		}

		return requireRows(res, ErrNotFound)
	})
}

func listParticipants(ctx context.Context, q queryer, roomId int) ([]Participant, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+participantColumns+" FROM participants p "+
			"JOIN accounts a ON a.id = p.account_id "+
			"LEFT JOIN letters l ON l.id = p.selected_letter_id "+
			"WHERE p.room_id = $1 ORDER BY p.joined_at, p.account_id",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]Participant, 0)
	for rows.Next() {
		var (
			p        Participant
			letterId sql.NullInt64
		)
		if err := rows.Scan(
			&p.RoomId,
			&p.UserId,
			&p.Username,
			&p.Name,
			&letterId,
			&p.LetterHeading,
			&p.LetterInUse,
			&p.IsReady,
			&p.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}

		if letterId.Valid {
			id := int(letterId.Int64)
			p.SelectedLetterId = &id
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (db *PgRepository) ListParticipants(ctx context.Context, roomId int) ([]Participant, error) {
	return listParticipants(ctx, db.conn, roomId)
}

func (db *PgRepository) AddParticipant(ctx context.Context, roomId, userId int) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO participants (room_id, account_id, joined_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (room_id, account_id) DO NOTHING",
		roomId,
		userId,
		time.Now().UTC(),
	)
	if isForeignKeyViolation(err) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("add participant: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (db *PgRepository) RemoveParticipant(ctx context.Context, roomId, userId int) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM participants WHERE room_id = $1 AND account_id = $2",
		roomId,
		userId,
	)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}

	return requireRows(res, ErrNotFound)
}

func (db *PgRepository) SelectLetter(ctx context.Context, roomId, userId, letterId int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT TRUE FROM participants WHERE room_id = $1 AND account_id = $2 FOR UPDATE",
			roomId,
			userId,
		).Scan(&exists)
		if err != nil {
			return notFound(err)
		}

		var inUse bool
		err = tx.QueryRowContext(ctx,
			"SELECT in_use FROM letters WHERE id = $1 AND owner_id = $2 FOR SHARE",
			letterId,
			userId,
		).Scan(&inUse)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && inUse) {
			return ErrLetterUnavailable
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE participants SET selected_letter_id = $3 WHERE room_id = $1 AND account_id = $2",
			roomId,
			userId,
			letterId,
		)
		return err
	})
}

func (db *PgRepository) ToggleReady(ctx context.Context, roomId, userId int) (bool, error) {
	var ready bool
	err := db.conn.QueryRowContext(ctx,
		"UPDATE participants SET is_ready = NOT is_ready "+
			"WHERE room_id = $1 AND account_id = $2 AND selected_letter_id IS NOT NULL RETURNING is_ready",
		roomId,
		userId,
	).Scan(&ready)

	return ready, notFound(err)
}

func (db *PgRepository) HasDrawResults(ctx context.Context, roomId int) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM draw_results WHERE room_id = $1)",
		roomId,
	).Scan(&exists)

	return exists, err
}

func (db *PgRepository) SaveDraw(ctx context.Context, params SaveDrawParams) ([]DrawResult, error) {
	var results []DrawResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var roomName string
		err := tx.QueryRowContext(ctx, "SELECT name FROM rooms WHERE id = $1 FOR SHARE", params.RoomId).
			Scan(&roomName)
		if err != nil {
			return notFound(err)
		}

		letters, err := lockDrawParticipants(ctx, tx, params.RoomId)
		if err != nil {
			return err
		}
		if !matchesDraw(letters, params) {
			return ErrDrawStale
		}

		var exists bool
		err = tx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM draw_results WHERE room_id = $1)", params.RoomId).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			if !params.ReplaceExisting {
				return ErrDrawExists
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM draw_results WHERE room_id = $1", params.RoomId); err != nil {
				return err
			}
		}

		letterIds := make([]int64, 0, len(params.Assignments))
		for _, a := range params.Assignments {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO draw_results (draw_id, room_id, room_name, giver_id, receiver_id, letter_id, drawn_at) "+
					"VALUES ($1, $2, $3, $4, $5, $6, $7)",
				params.DrawId,
				params.RoomId,
				roomName,
				a.GiverId,
				a.ReceiverId,
				a.LetterId,
				params.DrawnAt,
			)
			if err != nil {
				return fmt.Errorf("insert draw result: %w", err)
			}
			letterIds = append(letterIds, int64(a.LetterId))
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE letters SET in_use = TRUE WHERE id = ANY($1) AND NOT in_use",
			pq.Array(letterIds),
		)
		if err != nil {
			return fmt.Errorf("mark letters used: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if int(n) != len(letterIds) {
			return ErrDrawStale
		}

		results, err = queryDrawResults(ctx, tx, drawResultQuery+"WHERE d.room_id = $1 ORDER BY d.id", params.RoomId)
		return err
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// lockDrawParticipants locks the room's participant rows and returns the
// selected letter of every participant eligible for a draw. A participant
// that is not ready, has no letter, or whose letter is used maps to 0.
func lockDrawParticipants(ctx context.Context, tx *sql.Tx, roomId int) (map[int]int, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT p.account_id, p.is_ready, p.selected_letter_id, COALESCE(l.in_use, FALSE) "+
			"FROM participants p LEFT JOIN letters l ON l.id = p.selected_letter_id "+
			"WHERE p.room_id = $1 FOR UPDATE OF p",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("lock participants: %w", err)
	}
	defer rows.Close()

	letters := make(map[int]int)
	for rows.Next() {
		var (
			userId   int
			ready    bool
			letterId sql.NullInt64
			inUse    bool
		)
		if err := rows.Scan(&userId, &ready, &letterId, &inUse); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}

		letters[userId] = 0
		if ready && letterId.Valid && !inUse {
			letters[userId] = int(letterId.Int64)
		}
	}

	return letters, rows.Err()
}

// matchesDraw reports whether the locked participant state is the one the
// assignments were computed from.
func matchesDraw(letters map[int]int, params SaveDrawParams) bool {
	if len(letters) != len(params.Participants) || len(params.Assignments) != len(params.Participants) {
		return false
	}

	for _, id := range params.Participants {
		if letters[id] == 0 {
			return false
		}
	}

	for _, a := range params.Assignments {
		if a.GiverId == a.ReceiverId || letters[a.ReceiverId] != a.LetterId {
			return false
		}
	}

	return true
}

func queryDrawResults(ctx context.Context, q queryer, query string, args ...any) ([]DrawResult, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query draw results: %w", err)
	}
	defer rows.Close()

	results := make([]DrawResult, 0)
	for rows.Next() {
		var d DrawResult
		if err := rows.Scan(
			&d.Id,
			&d.DrawId,
			&d.RoomId,
			&d.RoomName,
			&d.GiverId,
			&d.GiverName,
			&d.ReceiverId,
			&d.ReceiverName,
			&d.LetterId,
			&d.LetterHeading,
			&d.LetterMessage,
			&d.DrawnAt,
		); err != nil {
			return nil, fmt.Errorf("scan draw result: %w", err)
		}
		results = append(results, d)
	}

	return results, rows.Err()
}

func (db *PgRepository) GetDrawResult(ctx context.Context, roomId, giverId int) (DrawResult, error) {
	results, err := queryDrawResults(ctx, db.conn,
		drawResultQuery+"WHERE d.room_id = $1 AND d.giver_id = $2 LIMIT 1",
		roomId,
		giverId,
	)
	if err != nil {
		return DrawResult{}, err
	}
	if len(results) == 0 {
		return DrawResult{}, ErrNotFound
	}

	return results[0], nil
}

func (db *PgRepository) ListGiverResults(ctx context.Context, giverId int) ([]DrawResult, error) {
	return queryDrawResults(ctx, db.conn,
		drawResultQuery+"WHERE d.giver_id = $1 ORDER BY d.drawn_at DESC, d.id DESC",
		giverId,
	)
}

func requireRows(res sql.Result, err error) error {
	n, rerr := res.RowsAffected()
	if rerr != nil {
		return rerr
	}
	if n == 0 {
		return err
	}
	return nil
}

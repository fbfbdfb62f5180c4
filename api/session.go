package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//ChatSession is a conversation
type ChatSession struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Created  time.Time  `json:"created"`
	Updated  time.Time  `json:"updated"`
	Messages []*Message `json:"messages,omitempty"`
}

//CreateSession creates a new ChatSession and returns its ID, or an error if one occurred.
//If ID is empty a new one is generated.
func CreateSession(ctx context.Context, session *ChatSession) (id string, err error) {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	id = session.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return "", &Error{Description: "Could not validate ChatSession id", Type: ErrorTypeUser, Err: err}
	}

	now := time.Now().UnixNano()
	_, err = tx.ExecContext(ctx, "INSERT INTO chat_session(id, name, created, updated) VALUES(?, ?, ?, ?);", id, session.Name, now, now)
	if err != nil {
		if isDuplicate(err) {
			return "", &Error{Description: "Could not insert ChatSession", Type: ErrorTypeDuplicate, Err: err, DuplicateID: id}
		}
		return "", &Error{Description: "Could not insert ChatSession", Type: ErrorTypeServer, Err: err}
	}

	return id, nil
}

//ReadSession returns the ChatSession with the given id, or nil if it doesn't exist.
//If messages is true, Messages will be populated.
func ReadSession(ctx context.Context, id string, messages bool) (*ChatSession, error) {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	session := &ChatSession{ID: id}
	var created, updated int64

	row := tx.QueryRowContext(ctx, "SELECT name, created, updated FROM chat_session WHERE id=?;", id)
	err := row.Scan(&(session.Name), &created, &updated)

	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, &Error{Description: fmt.Sprintf("Could not query ChatSession(%s)", id), Type: ErrorTypeServer, Err: err}
	}

	session.Created = time.Unix(0, created).UTC()
	session.Updated = time.Unix(0, updated).UTC()

	if !messages {
		return session, nil
	}

	msgs, err := ReadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = msgs

	return session, nil
}

//ListSessions returns all ChatSessions without Messages, most recently updated first
func ListSessions(ctx context.Context) ([]*ChatSession, error) {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	sessions := make([]*ChatSession, 0)

	rows, err := tx.QueryContext(ctx, "SELECT id, name, created, updated FROM chat_session ORDER BY updated DESC;")
	if err != nil {
		return nil, &Error{Description: "Could not query ChatSessions", Type: ErrorTypeServer, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		s := new(ChatSession)
		var created, updated int64
		if err = rows.Scan(&(s.ID), &(s.Name), &created, &updated); err != nil {
			return nil, &Error{Description: "Could not scan ChatSession row", Type: ErrorTypeServer, Err: err}
		}
		s.Created = time.Unix(0, created).UTC()
		s.Updated = time.Unix(0, updated).UTC()
		sessions = append(sessions, s)
	}

	if err = rows.Err(); err != nil {
		return nil, &Error{Description: "Could not scan ChatSession rows", Type: ErrorTypeServer, Err: err}
	}

	return sessions, nil
}

//UpdateSessionName sets the name of the ChatSession with the given id
func UpdateSessionName(ctx context.Context, id, name string, max int) error {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	if err := ValidateString("name", name, max); err != nil {
		return &Error{Description: "Could not validate ChatSession name", Type: ErrorTypeUser, Err: err}
	}

	res, err := tx.ExecContext(ctx, "UPDATE chat_session SET name=?, updated=? WHERE id=?;", name, time.Now().UnixNano(), id)
	if err != nil {
		return &Error{Description: fmt.Sprintf("Could not update ChatSession(%s)", id), Type: ErrorTypeServer, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &Error{Description: fmt.Sprintf("Could not update ChatSession(%s)", id), Type: ErrorTypeServer, Err: err}
	}
	if n == 0 {
		return &Error{Description: fmt.Sprintf("Could not update ChatSession(%s)", id), Type: ErrorTypeNotFound, Err: errors.New("session does not exist")}
	}

	return nil
}

//touchSession sets the updated time of the ChatSession with the given id
func touchSession(ctx context.Context, id string) error {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	if _, err := tx.ExecContext(ctx, "UPDATE chat_session SET updated=? WHERE id=?;", time.Now().UnixNano(), id); err != nil {
		return &Error{Description: fmt.Sprintf("Could not update ChatSession(%s)", id), Type: ErrorTypeServer, Err: err}
	}
	return nil
}

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//Roles
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

//Source is a citation stored with an AI message
type Source struct {
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	TextInAnswer string `json:"text_in_answer,omitempty"`
}

//Message is one side of an exchange
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Route     string    `json:"route,omitempty"`
	Sources   []*Source `json:"sources,omitempty"`
	Created   time.Time `json:"created"`
}

//Validate validates the given Message
func (m *Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAI {
		return fmt.Errorf("role (%s) must be %s or %s", m.Role, RoleUser, RoleAI)
	}
	if m.Role == RoleUser && m.Text == "" {
		return errors.New("text must not be empty")
	}
	return nil
}

//CreateMessage creates a new Message (ID and Created are ignored and created) and returns its ID, or an error if one occurred
func CreateMessage(ctx context.Context, msg *Message) (id string, err error) {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	if err = msg.Validate(); err != nil {
		return "", &Error{Description: "Could not validate Message", Type: ErrorTypeUser, Err: err}
	}

	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return "", &Error{Description: "Could not marshal sources json", Type: ErrorTypeServer, Err: err}
	}

	id = uuid.NewString()
	_, err = tx.ExecContext(ctx, "INSERT INTO chat_message(id, session_id, role, text, route, sources, created) VALUES(?, ?, ?, ?, ?, ?, ?);",
		id,
		msg.SessionID,
		msg.Role,
		msg.Text,
		msg.Route,
		string(sources),
		time.Now().UnixNano(),
	)
	if err != nil {
		return "", &Error{Description: "Could not insert Message", Type: ErrorTypeServer, Err: err}
	}

	if err = touchSession(ctx, msg.SessionID); err != nil {
		return "", err
	}

	return id, nil
}

//ReadMessages returns the Messages for the given session id, oldest first
func ReadMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	tx := ctx.Value(TransactionKey).(*sql.Tx)

	msgs := make([]*Message, 0)

	rows, err := tx.QueryContext(ctx, "SELECT id, role, text, route, sources, created FROM chat_message WHERE session_id=? ORDER BY created ASC;", sessionID)
	if err != nil {
		return nil, &Error{Description: fmt.Sprintf("Could not query Messages for ChatSession(%s)", sessionID), Type: ErrorTypeServer, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		m := &Message{SessionID: sessionID}
		var sources string
		var created int64
		if err = rows.Scan(&(m.ID), &(m.Role), &(m.Text), &(m.Route), &sources, &created); err != nil {
			return nil, &Error{Description: "Could not scan Message row", Type: ErrorTypeServer, Err: err}
		}
		if err = json.Unmarshal([]byte(sources), &(m.Sources)); err != nil {
			return nil, &Error{Description: fmt.Sprintf("Could not unmarshal sources for Message(%s)", m.ID), Type: ErrorTypeServer, Err: err}
		}
		m.Created = time.Unix(0, created).UTC()
		msgs = append(msgs, m)
	}

	if err = rows.Err(); err != nil {
		return nil, &Error{Description: "Could not scan Message rows", Type: ErrorTypeServer, Err: err}
	}

	return msgs, nil
}

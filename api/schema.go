package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_session (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	name VARCHAR(255) NOT NULL DEFAULT '',
	created BIGINT NOT NULL,
	updated BIGINT NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS chat_message (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	session_id VARCHAR(36) NOT NULL,
	role VARCHAR(16) NOT NULL,
	text TEXT NOT NULL,
	route VARCHAR(255) NOT NULL DEFAULT '',
	sources TEXT NOT NULL,
	created BIGINT NOT NULL
);`,
}

//InitSchema creates the chat tables if they don't exist
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Could not create schema: %w", err)
		}
	}
	return nil
}

//isDuplicate returns true if err is a primary key or unique constraint violation
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Package repository implements the record store over MySQL.  Each repo
// wraps a *sql.DB and issues one statement per call; no method spans a
// multi-row transaction.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row looked up by key does not exist.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with an existing row,
// such as a second hold on the same slot, or when a guarded update finds
// the row in an unexpected state.
var ErrConflict = errors.New("conflict")

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

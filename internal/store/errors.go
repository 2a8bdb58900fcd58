package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrSheetNotFound is returned when a sheet has not been created yet.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrRowOutOfRange is returned for row numbers outside the sheet's data rows.
	ErrRowOutOfRange = errors.New("row out of range")
)

// RowMovedError reports that a row no longer holds the key the caller located
// it by. Another writer deleted or moved rows above it in between.
type RowMovedError struct {
	Sheet string
	Row   int
	Want  string
	Got   string
}

func (e *RowMovedError) Error() string {
	return fmt.Sprintf("%s row %d holds %q, expected %q", e.Sheet, e.Row, e.Got, e.Want)
}

// RowMoved reports true so callers locate the row again.
func (e *RowMovedError) RowMoved() bool {
	return true
}

// BusyError marks a SQLite lock conflict that is worth retrying.
type BusyError struct {
	Op  string
	Err error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: database busy: %v", e.Op, e.Err)
}

func (e *BusyError) Unwrap() error {
	return e.Err
}

// Temporary reports true so the retry wrapper backs off and tries again.
func (e *BusyError) Temporary() bool {
	return true
}

// wrapErr annotates err with op and marks busy/locked SQLite errors.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return &BusyError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

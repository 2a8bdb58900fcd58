package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestUpdateCells_RollsBackOnFailedWrite(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, cells FROM sheet_rows").
		WithArgs("Sheet1", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cells"}).AddRow(7, `["1","a"]`))
	mock.ExpectExec("UPDATE sheet_rows SET cells").
		WithArgs(`["1","b"]`, 7).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.UpdateCells(context.Background(), "Sheet1", 2, "", map[int]string{1: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update row")

	var busy *BusyError
	assert.False(t, errors.As(err, &busy))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCells_BusyIsTemporary(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, cells FROM sheet_rows").
		WithArgs("Sheet1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cells"}).AddRow(9, `["2"]`))
	mock.ExpectExec("UPDATE sheet_rows SET cells").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})
	mock.ExpectRollback()

	err := s.UpdateCells(context.Background(), "Sheet1", 3, "", map[int]string{0: "x"})

	var busy *BusyError
	require.True(t, errors.As(err, &busy))
	assert.True(t, busy.Temporary())
	assert.Equal(t, "update row", busy.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(sqlite3.Error{Code: sqlite3.ErrLocked})

	err := s.AppendRows(context.Background(), "Sheet1", [][]string{{"1"}})

	var busy *BusyError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, "append rows", busy.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveRows_RollsBackWhenDeleteFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT header FROM sheets").
		WithArgs("Sheet2").
		WillReturnRows(sqlmock.NewRows([]string{"header"}).AddRow(`["A"]`))
	mock.ExpectQuery("SELECT id, cells FROM sheet_rows").
		WithArgs("Sheet1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "cells"}).AddRow(1, `["1"]`))
	mock.ExpectExec("INSERT INTO sheet_rows").
		WithArgs("Sheet2", `["1"]`).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec("DELETE FROM sheet_rows").
		WithArgs(1).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err := s.MoveRows(context.Background(), "Sheet1", "Sheet2", []int{2}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "move rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}
